package metrics

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	PersistenceReasonDeadlineExceeded = "deadline_exceeded"
	PersistenceReasonNotFound         = "not_found"
	PersistenceReasonLockTimeout      = "lock_timeout"
	PersistenceReasonSerialization    = "serialization_failure"
	PersistenceReasonUniqueViolation  = "unique_violation"
	PersistenceReasonUndefinedColumn  = "undefined_column"
	PersistenceReasonUnknown          = "unknown"
)

// PaymentMetrics captures payment state transitions scraped from /metrics.
type PaymentMetrics struct {
	transitions       *prometheus.CounterVec
	persistenceErrors *prometheus.CounterVec
	schemaGuardRuns   *prometheus.CounterVec
	eventPublishes    *prometheus.CounterVec
}

func NewPaymentMetrics(registerer prometheus.Registerer, cfg Config) (*PaymentMetrics, error) {
	labels := constLabels(cfg)
	transitions, err := register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payment_status_transitions_total",
		Help:        "Order payment status transitions by source.",
		ConstLabels: labels,
	}, []string{"from", "to", "source"}))
	if err != nil {
		return nil, err
	}
	persistenceErrors, err := register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payment_persistence_errors_total",
		Help:        "Order store errors by low-cardinality reason.",
		ConstLabels: labels,
	}, []string{"operation", "reason"}))
	if err != nil {
		return nil, err
	}
	schemaGuardRuns, err := register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payment_schema_guard_runs_total",
		Help:        "Correlation schema verification runs.",
		ConstLabels: labels,
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}
	eventPublishes, err := register(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "payment_event_publish_total",
		Help:        "Payment status events handed to the broker.",
		ConstLabels: labels,
	}, []string{"result"}))
	if err != nil {
		return nil, err
	}

	return &PaymentMetrics{
		transitions:       transitions,
		persistenceErrors: persistenceErrors,
		schemaGuardRuns:   schemaGuardRuns,
		eventPublishes:    eventPublishes,
	}, nil
}

func (m *PaymentMetrics) IncTransition(from, to, source string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to, source).Inc()
}

func (m *PaymentMetrics) IncPersistenceError(operation string, err error) {
	if m == nil || err == nil {
		return
	}
	m.persistenceErrors.WithLabelValues(operation, ClassifyPersistenceError(err)).Inc()
}

func (m *PaymentMetrics) IncSchemaGuardRun(ok bool) {
	if m == nil {
		return
	}
	result := "verified"
	if !ok {
		result = "failed"
	}
	m.schemaGuardRuns.WithLabelValues(result).Inc()
}

func (m *PaymentMetrics) IncEventPublish(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.eventPublishes.WithLabelValues(result).Inc()
}

// ClassifyPersistenceError maps driver errors into a metric reason.
func ClassifyPersistenceError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return PersistenceReasonDeadlineExceeded
	case errors.Is(err, gorm.ErrRecordNotFound):
		return PersistenceReasonNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return PersistenceReasonUniqueViolation
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return PersistenceReasonLockTimeout
		case "40001":
			return PersistenceReasonSerialization
		case "23505":
			return PersistenceReasonUniqueViolation
		case "42703":
			return PersistenceReasonUndefinedColumn
		}
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1205:
			return PersistenceReasonLockTimeout
		case 1213:
			return PersistenceReasonSerialization
		case 1062:
			return PersistenceReasonUniqueViolation
		case 1054:
			return PersistenceReasonUndefinedColumn
		}
	}
	return PersistenceReasonUnknown
}
