package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyPersistenceError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), want: PersistenceReasonDeadlineExceeded},
		{name: "not_found", err: gorm.ErrRecordNotFound, want: PersistenceReasonNotFound},
		{name: "pg_lock", err: &pgconn.PgError{Code: "55P03"}, want: PersistenceReasonLockTimeout},
		{name: "pg_undefined_column", err: &pgconn.PgError{Code: "42703"}, want: PersistenceReasonUndefinedColumn},
		{name: "mysql_deadlock", err: &mysql.MySQLError{Number: 1213}, want: PersistenceReasonSerialization},
		{name: "unknown", err: errors.New("boom"), want: PersistenceReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyPersistenceError(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestPaymentMetricsTransitions(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewPaymentMetrics(registry, Config{ServiceName: "qabalan", Environment: "test"})
	if err != nil {
		t.Fatalf("new payment metrics: %v", err)
	}

	m.IncTransition("pending", "paid", "return")
	m.IncTransition("pending", "paid", "return")

	got := testutil.ToFloat64(m.transitions.WithLabelValues("pending", "paid", "return"))
	if got != 2 {
		t.Fatalf("expected 2 transitions, got %v", got)
	}
}

func TestPaymentMetricsReusesRegisteredCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first, err := NewPaymentMetrics(registry, Config{})
	if err != nil {
		t.Fatalf("first registration: %v", err)
	}
	second, err := NewPaymentMetrics(registry, Config{})
	if err != nil {
		t.Fatalf("second registration: %v", err)
	}

	second.IncTransition("pending", "failed", "return")
	if got := testutil.ToFloat64(first.transitions.WithLabelValues("pending", "failed", "return")); got != 1 {
		t.Fatalf("expected shared collector, got %v", got)
	}
}

func TestHTTPMetricsMiddlewareCountsRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m, err := NewHTTPMetrics(registry, Config{})
	if err != nil {
		t.Fatalf("new http metrics: %v", err)
	}

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/payment/status", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/payment/status?orderId=1", nil))
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/payment/status", "200")); got != 3 {
		t.Fatalf("expected 3 requests, got %v", got)
	}
}
