package metrics

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("operation", "create_session"),
		attribute.String("order_id", "42"),
		attribute.String("outcome", "rejected"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "order_id" {
			t.Fatalf("expected order_id to be dropped")
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordGatewayCall(context.Background(), "create_session", "ok", time.Millisecond)
	m.RecordSessionAttempt(context.Background(), "create_minimal", "ok")
	m.RecordReconciliation(context.Background(), "return", "paid")
	m.RecordRateLimitDenied(context.Background(), "session", "bucket")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordReconciliation(context.Background(), "return", "paid")
}
