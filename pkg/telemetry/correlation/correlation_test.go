package correlation

import (
	"context"
	"testing"
)

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := ContextWithCorrelationID(context.Background(), "cid-1")
	_, cid := EnsureCorrelationID(ctx)
	if cid != "cid-1" {
		t.Fatalf("expected cid-1, got %q", cid)
	}
}

func TestHeadersCarryRemoteSpan(t *testing.T) {
	ctx := ContextWithRemoteSpan(context.Background(), "4bf92f3577b34da6a3ce929d0e0e4736", "00f067aa0ba902b7")
	headers := Headers(ctx)

	if headers[HeaderCorrelationID] == "" {
		t.Fatalf("expected generated correlation id")
	}
	if headers[HeaderTraceID] != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("unexpected trace id %q", headers[HeaderTraceID])
	}
	if headers[HeaderSpanID] != "00f067aa0ba902b7" {
		t.Fatalf("unexpected span id %q", headers[HeaderSpanID])
	}
}
