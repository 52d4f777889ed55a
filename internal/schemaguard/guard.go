package schemaguard

import (
	"context"
	"fmt"
	"time"

	"github.com/Mujanati13/Qabalan-sub007/internal/config"
	"github.com/Mujanati13/Qabalan-sub007/internal/observability/metrics"
	"github.com/Mujanati13/Qabalan-sub007/internal/order/domain"
	"github.com/Mujanati13/Qabalan-sub007/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	ordersTable = "orders"
	flightKey   = "orders"
	runTimeout  = 30 * time.Second
)

type column struct {
	name       string
	definition string
	set        func(*domain.Columns)
}

var requiredColumns = []column{
	{name: "currency", definition: "VARCHAR(3)", set: func(c *domain.Columns) { c.Currency = true }},
	{name: "payment_success_indicator", definition: "VARCHAR(255)", set: func(c *domain.Columns) { c.SuccessIndicator = true }},
	{name: "payment_transaction_id", definition: "VARCHAR(255)", set: func(c *domain.Columns) { c.TransactionID = true }},
	{name: "payment_result_indicator", definition: "VARCHAR(255)", set: func(c *domain.Columns) { c.ResultIndicator = true }},
}

var requiredIndexes = []struct {
	name   string
	column string
}{
	{name: "idx_orders_payment_session_id", column: "payment_session_id"},
	{name: "idx_orders_payment_success_indicator", column: "payment_success_indicator"},
}

type Params struct {
	fx.In

	Store   Store
	Status  *Status
	Config  config.Config
	Log     *zap.Logger
	Metrics *metrics.PaymentMetrics `optional:"true"`
}

// Guard makes sure the orders table can hold checkout correlation state.
type Guard struct {
	store           Store
	status          *Status
	log             *zap.Logger
	metrics         *metrics.PaymentMetrics
	defaultCurrency string
}

func New(p Params) *Guard {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	status := p.Status
	if status == nil {
		status = NewStatus()
	}
	return &Guard{
		store:           p.Store,
		status:          status,
		log:             log.Named("schemaguard"),
		metrics:         p.Metrics,
		defaultCurrency: p.Config.MPGS.DefaultCurrency,
	}
}

// Ensure verifies the correlation columns and indexes, adding any that are
// missing. Concurrent callers share a single check. A successful check is
// cached for the life of the process; a failed one is not.
func (g *Guard) Ensure(ctx context.Context) bool {
	if g.status.Verified() {
		return true
	}

	ch := g.status.flight.DoChan(flightKey, func() (interface{}, error) {
		if g.status.Verified() {
			return true, nil
		}
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), runTimeout)
		defer cancel()

		cols, err := g.run(runCtx)
		g.status.setColumns(cols)
		g.metrics.IncSchemaGuardRun(err == nil)
		if err != nil {
			return false, err
		}
		g.status.verified.Store(true)
		g.log.Info("orders correlation schema verified")
		return true, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			g.log.Error("orders correlation schema check failed", zap.Error(res.Err))
			return false
		}
		return true
	case <-ctx.Done():
		return false
	}
}

// Columns reports which optional order columns are known to exist.
func (g *Guard) Columns() domain.Columns {
	return g.status.Columns()
}

func (g *Guard) run(ctx context.Context) (domain.Columns, error) {
	var cols domain.Columns

	for _, c := range requiredColumns {
		has, err := g.store.HasColumn(ctx, ordersTable, c.name)
		if err != nil {
			return cols, fmt.Errorf("check column %s: %w", c.name, err)
		}
		if !has {
			if err := g.store.AddColumn(ctx, ordersTable, c.name, c.definition); err != nil && !db.IsDuplicateObjectErr(err) {
				return cols, fmt.Errorf("add column %s: %w", c.name, err)
			}
			g.log.Info("added orders column", zap.String("column", c.name))
		}

		// Idempotent; repeated until a pass succeeds.
		if c.name == "currency" && g.defaultCurrency != "" {
			n, err := g.store.BackfillEmpty(ctx, ordersTable, c.name, g.defaultCurrency)
			if err != nil {
				return cols, fmt.Errorf("backfill currency: %w", err)
			}
			if n > 0 {
				g.log.Info("backfilled order currency", zap.Int64("rows", n), zap.String("currency", g.defaultCurrency))
			}
		}
		c.set(&cols)
	}

	for _, idx := range requiredIndexes {
		has, err := g.store.HasIndex(ctx, ordersTable, idx.name)
		if err != nil {
			return cols, fmt.Errorf("check index %s: %w", idx.name, err)
		}
		if has {
			continue
		}
		if err := g.store.CreateIndex(ctx, ordersTable, idx.name, idx.column); err != nil && !db.IsDuplicateObjectErr(err) {
			return cols, fmt.Errorf("create index %s: %w", idx.name, err)
		}
		g.log.Info("created orders index", zap.String("index", idx.name))
	}

	return cols, nil
}
