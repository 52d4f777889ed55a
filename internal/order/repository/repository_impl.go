package repository

import (
	"context"
	"strings"
	"time"

	"github.com/Mujanati13/Qabalan-sub007/internal/order/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

type orderRow struct {
	ID                      int64
	TotalAmount             decimal.Decimal
	Currency                *string
	OrderStatus             *string
	PaymentStatus           *string
	PaymentMethod           *string
	PaymentProvider         *string
	PaymentSessionID        *string
	PaymentSuccessIndicator *string
	PaymentTransactionID    *string
	PaymentResultIndicator  *string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id int64, cols domain.Columns) (*domain.Order, error) {
	columns := []string{
		"id", "total_amount", "order_status", "payment_status", "payment_method",
		"payment_provider", "payment_session_id", "created_at", "updated_at",
	}
	if cols.Currency {
		columns = append(columns, "currency")
	}
	if cols.SuccessIndicator {
		columns = append(columns, "payment_success_indicator")
	}
	if cols.TransactionID {
		columns = append(columns, "payment_transaction_id")
	}
	if cols.ResultIndicator {
		columns = append(columns, "payment_result_indicator")
	}

	var row orderRow
	err := db.WithContext(ctx).Raw(
		`SELECT `+strings.Join(columns, ", ")+`
		 FROM orders
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}

	return &domain.Order{
		ID:                      row.ID,
		TotalAmount:             row.TotalAmount,
		Currency:                strings.ToUpper(deref(row.Currency)),
		OrderStatus:             deref(row.OrderStatus),
		PaymentStatus:           normalizeStatus(deref(row.PaymentStatus)),
		PaymentMethod:           deref(row.PaymentMethod),
		PaymentProvider:         deref(row.PaymentProvider),
		PaymentSessionID:        deref(row.PaymentSessionID),
		PaymentSuccessIndicator: deref(row.PaymentSuccessIndicator),
		PaymentTransactionID:    deref(row.PaymentTransactionID),
		PaymentResultIndicator:  deref(row.PaymentResultIndicator),
		CreatedAt:               row.CreatedAt,
		UpdatedAt:               row.UpdatedAt,
	}, nil
}

// SaveCorrelation records a new checkout attempt. Any indicator from an older
// attempt is overwritten so that its confirmation no longer matches.
func (r *repo) SaveCorrelation(ctx context.Context, db *gorm.DB, id int64, c domain.Correlation, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET payment_session_id = ?,
			payment_success_indicator = ?,
			payment_provider = ?,
			payment_status = ?,
			payment_result_indicator = NULL,
			payment_transaction_id = NULL,
			updated_at = ?
		 WHERE id = ? AND payment_status <> ?`,
		c.SessionID,
		c.SuccessIndicator,
		domain.ProviderMPGS,
		string(domain.PaymentStatusPending),
		now,
		id,
		string(domain.PaymentStatusPaid),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkPaidIfIndicator transitions the order to paid only when the stored
// success indicator equals expected and the order is not already paid.
func (r *repo) MarkPaidIfIndicator(ctx context.Context, db *gorm.DB, id int64, expected, received, method string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET payment_status = ?,
			payment_method = ?,
			payment_result_indicator = ?,
			updated_at = ?
		 WHERE id = ? AND payment_status <> ? AND payment_success_indicator = ?`,
		string(domain.PaymentStatusPaid),
		method,
		received,
		now,
		id,
		string(domain.PaymentStatusPaid),
		expected,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, id int64, received string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET payment_status = ?,
			payment_result_indicator = ?,
			updated_at = ?
		 WHERE id = ? AND payment_status <> ?`,
		string(domain.PaymentStatusPaid),
		received,
		now,
		id,
		string(domain.PaymentStatusPaid),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id int64, received, method string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET payment_status = ?,
			payment_method = ?,
			payment_result_indicator = ?,
			updated_at = ?
		 WHERE id = ? AND payment_status <> ?`,
		string(domain.PaymentStatusFailed),
		method,
		received,
		now,
		id,
		string(domain.PaymentStatusPaid),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ResetPending(ctx context.Context, db *gorm.DB, id int64, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET payment_status = ?,
			payment_session_id = NULL,
			payment_success_indicator = NULL,
			updated_at = ?
		 WHERE id = ?`,
		string(domain.PaymentStatusPending),
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SetTransactionID(ctx context.Context, db *gorm.DB, id int64, transactionID string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET payment_transaction_id = ?,
			updated_at = ?
		 WHERE id = ?`,
		transactionID,
		now,
		id,
	).Error
}

func (r *repo) InsertHistory(ctx context.Context, db *gorm.DB, entry *domain.StatusHistory) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO order_status_history (id, order_id, status, note, changed_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.OrderID,
		entry.Status,
		entry.Note,
		entry.ChangedBy,
		entry.CreatedAt,
	).Error
}

// HasHistoryNote reports whether the order already has a history entry whose
// note starts with prefix.
func (r *repo) HasHistoryNote(ctx context.Context, db *gorm.DB, orderID int64, prefix string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM order_status_history
		 WHERE order_id = ? AND note LIKE ?`,
		orderID,
		prefix+"%",
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) ListHistory(ctx context.Context, db *gorm.DB, orderID int64) ([]domain.StatusHistory, error) {
	var items []domain.StatusHistory
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, status, note, changed_by, created_at
		 FROM order_status_history
		 WHERE order_id = ?
		 ORDER BY created_at ASC, id ASC`,
		orderID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func normalizeStatus(raw string) domain.PaymentStatus {
	switch domain.PaymentStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case domain.PaymentStatusPaid:
		return domain.PaymentStatusPaid
	case domain.PaymentStatusFailed:
		return domain.PaymentStatusFailed
	default:
		return domain.PaymentStatusPending
	}
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
