package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

const (
	ProviderMPGS      = "mpgs"
	PaymentMethodCard = "card"
)

// Order carries the payment-related fields of an order row. Currency and the
// correlation fields are empty when the underlying column does not exist.
type Order struct {
	ID                      int64           `json:"id"`
	TotalAmount             decimal.Decimal `json:"total_amount"`
	Currency                string          `json:"currency,omitempty"`
	OrderStatus             string          `json:"order_status"`
	PaymentStatus           PaymentStatus   `json:"payment_status"`
	PaymentMethod           string          `json:"payment_method,omitempty"`
	PaymentProvider         string          `json:"payment_provider,omitempty"`
	PaymentSessionID        string          `json:"payment_session_id,omitempty"`
	PaymentSuccessIndicator string          `json:"-"`
	PaymentTransactionID    string          `json:"payment_transaction_id,omitempty"`
	PaymentResultIndicator  string          `json:"payment_result_indicator,omitempty"`
	CreatedAt               time.Time       `json:"created_at"`
	UpdatedAt               time.Time       `json:"updated_at"`
}

func (o *Order) IsPaid() bool {
	return o != nil && o.PaymentStatus == PaymentStatusPaid
}

// StatusHistory is one append-only order_status_history row. A nil ChangedBy
// means the change was made by the system.
type StatusHistory struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	OrderID   int64        `json:"order_id" gorm:"not null;index"`
	Status    string       `json:"status" gorm:"not null"`
	Note      string       `json:"note"`
	ChangedBy *int64       `json:"changed_by"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null"`
}

func (StatusHistory) TableName() string { return "order_status_history" }

// Correlation is the gateway state recorded against an order when a checkout
// session is created.
type Correlation struct {
	SessionID        string
	SuccessIndicator string
}

// Columns reports which optional order columns are present.
type Columns struct {
	Currency         bool
	SuccessIndicator bool
	TransactionID    bool
	ResultIndicator  bool
}

func AllColumns() Columns {
	return Columns{Currency: true, SuccessIndicator: true, TransactionID: true, ResultIndicator: true}
}

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, id int64, cols Columns) (*Order, error)
	SaveCorrelation(ctx context.Context, db *gorm.DB, id int64, c Correlation, now time.Time) (bool, error)
	MarkPaidIfIndicator(ctx context.Context, db *gorm.DB, id int64, expected, received, method string, now time.Time) (bool, error)
	MarkPaid(ctx context.Context, db *gorm.DB, id int64, received string, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, id int64, received, method string, now time.Time) (bool, error)
	ResetPending(ctx context.Context, db *gorm.DB, id int64, now time.Time) (bool, error)
	SetTransactionID(ctx context.Context, db *gorm.DB, id int64, transactionID string, now time.Time) error
	InsertHistory(ctx context.Context, db *gorm.DB, entry *StatusHistory) error
	HasHistoryNote(ctx context.Context, db *gorm.DB, orderID int64, prefix string) (bool, error)
	ListHistory(ctx context.Context, db *gorm.DB, orderID int64) ([]StatusHistory, error)
}
