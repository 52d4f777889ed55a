package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/IBM/sarama"
	"github.com/Mujanati13/Qabalan-sub007/internal/config"
	paymentdomain "github.com/Mujanati13/Qabalan-sub007/internal/payment/domain"
	"github.com/Mujanati13/Qabalan-sub007/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const headerEventType = "event_type"

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
}

// NewPublisher returns a kafka publisher when brokers are configured and a
// logging no-op publisher otherwise.
func NewPublisher(p Params) (paymentdomain.Publisher, error) {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("payment.events")

	kafkaCfg := p.Config.Kafka
	if len(kafkaCfg.Brokers) == 0 {
		log.Info("no kafka brokers configured, payment events are not published")
		return NoopPublisher{log: log}, nil
	}

	producer, err := sarama.NewSyncProducer(kafkaCfg.Brokers, producerConfig(kafkaCfg))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	if p.Lifecycle != nil {
		p.Lifecycle.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return producer.Close()
			},
		})
	}
	log.Info("kafka producer initialized", zap.Strings("brokers", kafkaCfg.Brokers))

	return NewKafkaPublisher(producer, kafkaCfg.PaymentTopic, log), nil
}

func producerConfig(cfg config.KafkaConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	return sc
}

// KafkaPublisher writes payment status events keyed by order id so that
// events for one order stay in one partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.Logger
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string, log *zap.Logger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaPublisher{producer: producer, topic: topic, log: log}
}

func (p *KafkaPublisher) PublishStatusChanged(ctx context.Context, event paymentdomain.StatusChanged) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal payment event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:   p.topic,
		Key:     sarama.StringEncoder(strconv.FormatInt(event.OrderID, 10)),
		Value:   sarama.ByteEncoder(payload),
		Headers: messageHeaders(ctx, event),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send payment event: %w", err)
	}

	p.log.Debug("payment event published",
		zap.String("topic", p.topic),
		zap.Int64("order_id", event.OrderID),
		zap.String("to", event.To),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

func messageHeaders(ctx context.Context, event paymentdomain.StatusChanged) []sarama.RecordHeader {
	carrier := headerCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, &carrier)

	if event.CorrelationID != "" {
		ctx = correlation.ContextWithCorrelationID(ctx, event.CorrelationID)
	}
	for key, value := range correlation.Headers(ctx) {
		carrier.Set(key, value)
	}
	carrier.Set(headerEventType, paymentdomain.EventTypeStatusChanged)
	return carrier
}

// headerCarrier adapts kafka record headers to a propagation.TextMapCarrier.
type headerCarrier []sarama.RecordHeader

func (c headerCarrier) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range *c {
		if string(h.Key) == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}

type NoopPublisher struct {
	log *zap.Logger
}

func (p NoopPublisher) PublishStatusChanged(_ context.Context, event paymentdomain.StatusChanged) error {
	if p.log != nil {
		p.log.Debug("payment event dropped",
			zap.Int64("order_id", event.OrderID),
			zap.String("from", event.From),
			zap.String("to", event.To),
		)
	}
	return nil
}
