package service

import (
	"context"
	"strconv"
	"time"

	"github.com/Mujanati13/Qabalan-sub007/internal/clock"
	"github.com/Mujanati13/Qabalan-sub007/internal/config"
	"github.com/Mujanati13/Qabalan-sub007/internal/mpgs"
	"github.com/Mujanati13/Qabalan-sub007/internal/observability/metrics"
	orderdomain "github.com/Mujanati13/Qabalan-sub007/internal/order/domain"
	paymentdomain "github.com/Mujanati13/Qabalan-sub007/internal/payment/domain"
	"github.com/Mujanati13/Qabalan-sub007/internal/ratelimit"
	"github.com/Mujanati13/Qabalan-sub007/internal/schemaguard"
	"github.com/Mujanati13/Qabalan-sub007/pkg/telemetry/correlation"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	Config         config.Config
	Clock          clock.Clock
	GenID          *snowflake.Node
	Repo           orderdomain.Repository
	Guard          *schemaguard.Guard
	Gateway        mpgs.Gateway
	Negotiator     *mpgs.Negotiator
	Publisher      paymentdomain.Publisher
	Limiter        ratelimit.Limiter       `optional:"true"`
	Metrics        *metrics.Metrics        `optional:"true"`
	PaymentMetrics *metrics.PaymentMetrics `optional:"true"`
}

// base holds what the checkout and reconciliation flows share.
type base struct {
	db             *gorm.DB
	log            *zap.Logger
	cfg            config.MPGSConfig
	clock          clock.Clock
	repo           orderdomain.Repository
	guard          *schemaguard.Guard
	gateway        mpgs.Gateway
	publisher      paymentdomain.Publisher
	metrics        *metrics.Metrics
	paymentMetrics *metrics.PaymentMetrics
}

func newBase(p Params, name string) base {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return base{
		db:             p.DB,
		log:            log.Named(name),
		cfg:            p.Config.MPGS,
		clock:          clk,
		repo:           p.Repo,
		guard:          p.Guard,
		gateway:        p.Gateway,
		publisher:      p.Publisher,
		metrics:        p.Metrics,
		paymentMetrics: p.PaymentMetrics,
	}
}

func (b *base) now() time.Time {
	return b.clock.Now().UTC()
}

func (b *base) loadOrder(ctx context.Context, db *gorm.DB, id int64) (*orderdomain.Order, error) {
	order, err := b.repo.FindByID(ctx, db, id, b.guard.Columns())
	if err != nil {
		b.paymentMetrics.IncPersistenceError("find_order", err)
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	return order, nil
}

// publish hands a committed transition to the event publisher. Failures are
// logged and never surface to the caller.
func (b *base) publish(ctx context.Context, orderID int64, from, to orderdomain.PaymentStatus, source string) {
	if from == to {
		return
	}
	b.paymentMetrics.IncTransition(string(from), string(to), source)
	if b.publisher == nil {
		return
	}

	ctx, cid := correlation.EnsureCorrelationID(ctx)
	err := b.publisher.PublishStatusChanged(ctx, paymentdomain.StatusChanged{
		OrderID:       orderID,
		From:          string(from),
		To:            string(to),
		Source:        source,
		OccurredAt:    b.now(),
		CorrelationID: cid,
	})
	b.paymentMetrics.IncEventPublish(err)
	if err != nil {
		b.log.Warn("failed to publish payment status event",
			zap.Int64("order_id", orderID),
			zap.String("to", string(to)),
			zap.Error(err),
		)
	}
}

func parseOrderID(raw string) (int64, error) {
	if raw == "" {
		return 0, paymentdomain.ErrMissingOrderID
	}
	return orderdomain.ParseOrderID(raw)
}

func gatewayOrderID(id int64) string {
	return strconv.FormatInt(id, 10)
}
