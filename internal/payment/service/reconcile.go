package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	orderdomain "github.com/Mujanati13/Qabalan-sub007/internal/order/domain"
	paymentdomain "github.com/Mujanati13/Qabalan-sub007/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const transactionLookupTimeout = 5 * time.Second

// Reconciler decides the payment status of an order from inbound
// confirmations.
type Reconciler struct {
	base
	genID  *snowflake.Node
	strict bool
}

func NewReconciler(p Params) *Reconciler {
	return &Reconciler{
		base:   newBase(p, "payment.reconciler"),
		genID:  p.GenID,
		strict: p.Config.MPGS.StrictCallback,
	}
}

type transition struct {
	outcome paymentdomain.Outcome
	from    orderdomain.PaymentStatus
	to      orderdomain.PaymentStatus
}

// HandleReturn applies a gateway return. The order becomes paid only when
// resultIndicator equals the success indicator stored at session creation;
// anything else marks it failed. A repeated matching return succeeds without
// another history entry.
func (r *Reconciler) HandleReturn(ctx context.Context, rawOrderID, resultIndicator string) (paymentdomain.Outcome, error) {
	return r.reconcile(ctx, paymentdomain.SourceReturn, rawOrderID, func(tx *gorm.DB, order *orderdomain.Order) (transition, error) {
		return r.applyReturn(ctx, tx, order, strings.TrimSpace(resultIndicator))
	})
}

// HandleSuccessCallback applies a client-initiated success signal. Unless
// strict callbacks are configured it does not compare indicators and marks
// the order paid.
func (r *Reconciler) HandleSuccessCallback(ctx context.Context, rawOrderID, resultIndicator string) (paymentdomain.Outcome, error) {
	if r.strict {
		return r.reconcile(ctx, paymentdomain.SourceCallback, rawOrderID, func(tx *gorm.DB, order *orderdomain.Order) (transition, error) {
			return r.applyReturn(ctx, tx, order, strings.TrimSpace(resultIndicator))
		})
	}

	received := strings.TrimSpace(resultIndicator)
	if received == "" {
		received = paymentdomain.CallbackDefaultIndicator
	}
	return r.reconcile(ctx, paymentdomain.SourceCallback, rawOrderID, func(tx *gorm.DB, order *orderdomain.Order) (transition, error) {
		if order.IsPaid() {
			return transition{outcome: paymentdomain.OutcomeAlreadyPaid, from: order.PaymentStatus, to: order.PaymentStatus}, nil
		}
		changed, err := r.repo.MarkPaid(ctx, tx, order.ID, received, r.now())
		if err != nil {
			r.paymentMetrics.IncPersistenceError("mark_paid", err)
			return transition{}, err
		}
		if !changed {
			return r.settled(ctx, tx, order)
		}
		if err := r.appendHistory(ctx, tx, order, paymentdomain.NoteCallbackConfirmed); err != nil {
			return transition{}, err
		}
		return transition{outcome: paymentdomain.OutcomePaid, from: order.PaymentStatus, to: orderdomain.PaymentStatusPaid}, nil
	})
}

// Cancel returns the order payment to pending so that a new checkout session
// can be started. The current session is dropped, so its indicator no longer
// confirms the order.
func (r *Reconciler) Cancel(ctx context.Context, rawOrderID string) (paymentdomain.Outcome, error) {
	return r.reconcile(ctx, paymentdomain.SourceCancel, rawOrderID, func(tx *gorm.DB, order *orderdomain.Order) (transition, error) {
		if order.IsPaid() {
			r.log.Warn("cancelling payment of a paid order", zap.Int64("order_id", order.ID))
		}
		if _, err := r.repo.ResetPending(ctx, tx, order.ID, r.now()); err != nil {
			r.paymentMetrics.IncPersistenceError("reset_pending", err)
			return transition{}, err
		}
		return transition{outcome: paymentdomain.OutcomeCancelled, from: order.PaymentStatus, to: orderdomain.PaymentStatusPending}, nil
	})
}

func (r *Reconciler) reconcile(ctx context.Context, source, rawOrderID string, apply func(tx *gorm.DB, order *orderdomain.Order) (transition, error)) (paymentdomain.Outcome, error) {
	id, err := parseOrderID(strings.TrimSpace(rawOrderID))
	if err != nil {
		r.metrics.RecordReconciliation(ctx, source, "invalid")
		return "", err
	}
	if !r.guard.Ensure(ctx) {
		r.metrics.RecordReconciliation(ctx, source, "error")
		return "", paymentdomain.ErrSchemaUnavailable
	}

	var result transition
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := r.loadOrder(ctx, tx, id)
		if err != nil {
			return err
		}
		result, err = apply(tx, order)
		return err
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, orderdomain.ErrOrderNotFound) {
			outcome = "not_found"
		}
		r.metrics.RecordReconciliation(ctx, source, outcome)
		return "", err
	}

	r.metrics.RecordReconciliation(ctx, source, string(result.outcome))
	r.log.Info("payment reconciled",
		zap.Int64("order_id", id),
		zap.String("source", source),
		zap.String("outcome", string(result.outcome)),
		zap.String("from", string(result.from)),
		zap.String("to", string(result.to)),
	)

	r.publish(ctx, id, result.from, result.to, source)
	if result.outcome == paymentdomain.OutcomePaid {
		r.captureTransactionID(ctx, id)
	}
	return result.outcome, nil
}

func (r *Reconciler) applyReturn(ctx context.Context, tx *gorm.DB, order *orderdomain.Order, received string) (transition, error) {
	if order.IsPaid() {
		return transition{outcome: paymentdomain.OutcomeAlreadyPaid, from: order.PaymentStatus, to: order.PaymentStatus}, nil
	}

	expected := order.PaymentSuccessIndicator
	if indicatorMatches(expected, received) {
		changed, err := r.repo.MarkPaidIfIndicator(ctx, tx, order.ID, expected, received, orderdomain.PaymentMethodCard, r.now())
		if err != nil {
			r.paymentMetrics.IncPersistenceError("mark_paid", err)
			return transition{}, err
		}
		if changed {
			note := paymentdomain.NoteReturnConfirmed
			if order.PaymentSessionID != "" {
				note += " (session " + order.PaymentSessionID + ")"
			}
			if err := r.appendHistory(ctx, tx, order, note); err != nil {
				return transition{}, err
			}
			return transition{outcome: paymentdomain.OutcomePaid, from: order.PaymentStatus, to: orderdomain.PaymentStatusPaid}, nil
		}

		current, err := r.loadOrder(ctx, tx, order.ID)
		if err != nil {
			return transition{}, err
		}
		if current.IsPaid() {
			return transition{outcome: paymentdomain.OutcomeAlreadyPaid, from: current.PaymentStatus, to: current.PaymentStatus}, nil
		}
		r.log.Info("success indicator rotated before confirmation", zap.Int64("order_id", order.ID))
	} else {
		r.log.Warn("result indicator does not match the stored success indicator",
			zap.Int64("order_id", order.ID),
			zap.Bool("received", received != ""),
			zap.Bool("expected", expected != ""),
		)
	}

	changed, err := r.repo.MarkFailed(ctx, tx, order.ID, received, orderdomain.PaymentMethodCard, r.now())
	if err != nil {
		r.paymentMetrics.IncPersistenceError("mark_failed", err)
		return transition{}, err
	}
	if !changed {
		return r.settled(ctx, tx, order)
	}
	return transition{outcome: paymentdomain.OutcomeFailed, from: order.PaymentStatus, to: orderdomain.PaymentStatusFailed}, nil
}

// settled re-reads an order whose conditional update matched no row.
func (r *Reconciler) settled(ctx context.Context, tx *gorm.DB, order *orderdomain.Order) (transition, error) {
	current, err := r.loadOrder(ctx, tx, order.ID)
	if err != nil {
		return transition{}, err
	}
	if current.IsPaid() {
		return transition{outcome: paymentdomain.OutcomeAlreadyPaid, from: current.PaymentStatus, to: current.PaymentStatus}, nil
	}
	return transition{outcome: paymentdomain.OutcomeFailed, from: order.PaymentStatus, to: current.PaymentStatus}, nil
}

// appendHistory records the first confirmation of an order. Later paid
// transitions, after a cancel for instance, add no entry.
func (r *Reconciler) appendHistory(ctx context.Context, tx *gorm.DB, order *orderdomain.Order, note string) error {
	confirmed, err := r.repo.HasHistoryNote(ctx, tx, order.ID, paymentdomain.NoteConfirmedPrefix)
	if err != nil {
		r.paymentMetrics.IncPersistenceError("list_history", err)
		return err
	}
	if confirmed {
		r.log.Info("order already confirmed once, skipping history entry", zap.Int64("order_id", order.ID))
		return nil
	}

	err = r.repo.InsertHistory(ctx, tx, &orderdomain.StatusHistory{
		ID:        r.genID.Generate(),
		OrderID:   order.ID,
		Status:    order.OrderStatus,
		Note:      note,
		CreatedAt: r.now(),
	})
	if err != nil {
		r.paymentMetrics.IncPersistenceError("insert_history", err)
	}
	return err
}

// captureTransactionID records the gateway transaction reference of a newly
// paid order. It is best effort and never changes the payment status.
func (r *Reconciler) captureTransactionID(ctx context.Context, id int64) {
	if r.gateway == nil || !r.cfg.Configured() || !r.guard.Columns().TransactionID {
		return
	}
	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), transactionLookupTimeout)
	defer cancel()

	resp, err := r.gateway.GetOrder(lookupCtx, gatewayOrderID(id))
	if err != nil {
		r.log.Warn("transaction id lookup failed", zap.Int64("order_id", id), zap.Error(err))
		return
	}
	txnID := resp.LatestTransactionID()
	if txnID == "" {
		return
	}
	if err := r.repo.SetTransactionID(lookupCtx, r.db, id, txnID, r.now()); err != nil {
		r.paymentMetrics.IncPersistenceError("set_transaction_id", err)
		r.log.Warn("failed to record transaction id", zap.Int64("order_id", id), zap.Error(err))
	}
}

func indicatorMatches(expected, received string) bool {
	if expected == "" || received == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}
