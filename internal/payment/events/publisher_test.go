package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/Mujanati13/Qabalan-sub007/internal/config"
	paymentdomain "github.com/Mujanati13/Qabalan-sub007/internal/payment/domain"
	"github.com/Mujanati13/Qabalan-sub007/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func headerValue(headers []sarama.RecordHeader, key string) string {
	return headerCarrier(headers).Get(key)
}

func TestKafkaPublisherSendsKeyedEvent(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	defer func() { require.NoError(t, producer.Close()) }()

	event := paymentdomain.StatusChanged{
		OrderID:       42,
		From:          "pending",
		To:            "paid",
		Source:        paymentdomain.SourceReturn,
		OccurredAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		CorrelationID: "01HCORRELATION",
	}

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "payment.status_changed" {
			return errors.New("unexpected topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "42" {
			return errors.New("unexpected key " + string(key))
		}
		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var decoded paymentdomain.StatusChanged
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return err
		}
		if decoded.To != "paid" || decoded.OrderID != 42 {
			return errors.New("unexpected payload " + string(raw))
		}
		if headerValue(msg.Headers, correlation.HeaderCorrelationID) != "01HCORRELATION" {
			return errors.New("missing correlation header")
		}
		if headerValue(msg.Headers, headerEventType) != paymentdomain.EventTypeStatusChanged {
			return errors.New("missing event type header")
		}
		return nil
	})

	publisher := NewKafkaPublisher(producer, "payment.status_changed", zap.NewNop())
	require.NoError(t, publisher.PublishStatusChanged(context.Background(), event))
}

func TestKafkaPublisherReturnsSendError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	defer func() { require.NoError(t, producer.Close()) }()
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewKafkaPublisher(producer, "payment.status_changed", nil)
	err := publisher.PublishStatusChanged(context.Background(), paymentdomain.StatusChanged{OrderID: 7})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestNewPublisherWithoutBrokersIsNoop(t *testing.T) {
	publisher, err := NewPublisher(Params{Config: config.Config{}, Log: zap.NewNop()})
	require.NoError(t, err)
	assert.IsType(t, NoopPublisher{}, publisher)
	assert.NoError(t, publisher.PublishStatusChanged(context.Background(), paymentdomain.StatusChanged{OrderID: 1}))
}

func TestHeaderCarrierOverwrites(t *testing.T) {
	carrier := headerCarrier{}
	carrier.Set("a", "1")
	carrier.Set("a", "2")
	carrier.Set("b", "3")

	assert.Equal(t, "2", carrier.Get("a"))
	assert.Equal(t, []string{"a", "b"}, carrier.Keys())
}

func TestProducerConfig(t *testing.T) {
	sc := producerConfig(config.KafkaConfig{ClientID: "qabalan-payments"})
	assert.Equal(t, "qabalan-payments", sc.ClientID)
	assert.True(t, sc.Producer.Return.Successes)
	assert.Equal(t, sarama.WaitForAll, sc.Producer.RequiredAcks)
	assert.NoError(t, sc.Validate())
}
