package domain

import (
	"context"
	"time"

	orderdomain "github.com/Mujanati13/Qabalan-sub007/internal/order/domain"
	"github.com/shopspring/decimal"
)

// Outcome is the result of applying a confirmation to an order.
type Outcome string

const (
	OutcomePaid        Outcome = "paid"
	OutcomeAlreadyPaid Outcome = "already_paid"
	OutcomeFailed      Outcome = "failed"
	OutcomeCancelled   Outcome = "cancelled"
)

// Succeeded reports whether the order is paid after the confirmation.
func (o Outcome) Succeeded() bool {
	return o == OutcomePaid || o == OutcomeAlreadyPaid
}

// Sources of a payment status change.
const (
	SourceReturn   = "return"
	SourceCallback = "callback"
	SourceCancel   = "cancel"
	SourceSession  = "session"
)

// CallbackDefaultIndicator is recorded when a success callback carries no
// result indicator.
const CallbackDefaultIndicator = "SUCCESS"

// NoteConfirmedPrefix starts every history note written when an order is
// confirmed paid.
const NoteConfirmedPrefix = "Payment confirmed automatically via MPGS"

const (
	NoteReturnConfirmed   = NoteConfirmedPrefix + " return"
	NoteCallbackConfirmed = NoteConfirmedPrefix + " callback"
)

type CheckoutRequest struct {
	OrderID  string
	Amount   *decimal.Decimal
	Currency string
	Hosted   bool
	Lang     string
}

// CheckoutSession is returned to the client and never persisted. Only the
// session id and success indicator are stored against the order.
type CheckoutSession struct {
	OrderID          int64
	SessionID        string
	SuccessIndicator string
	Attempt          string
	Amount           decimal.Decimal
	Currency         string
	CheckoutURL      string
	CheckoutScript   string
	PaymentURL       string
	ReturnURL        string
	CancelURL        string
}

// PaymentStatus is the pollable view of an order payment. ResultIndicator is
// the last indicator received from a client, never the expected one.
type PaymentStatus struct {
	OrderID         int64                     `json:"orderId"`
	PaymentStatus   orderdomain.PaymentStatus `json:"paymentStatus"`
	TransactionID   string                    `json:"transactionId"`
	ResultIndicator string                    `json:"resultIndicator"`
}

// StatusChanged is published after a payment status transition commits.
type StatusChanged struct {
	OrderID       int64     `json:"order_id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Source        string    `json:"source"`
	OccurredAt    time.Time `json:"occurred_at"`
	CorrelationID string    `json:"correlation_id"`
}

const EventTypeStatusChanged = "payment.status_changed"

type Publisher interface {
	PublishStatusChanged(ctx context.Context, event StatusChanged) error
}
