package context

import stdcontext "context"

type requestIDKey struct{}
type orderIDKey struct{}

func WithRequestID(ctx stdcontext.Context, requestID string) stdcontext.Context {
	if requestID == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithOrderID tags the context with the order a payment request acts on.
func WithOrderID(ctx stdcontext.Context, orderID string) stdcontext.Context {
	if orderID == "" {
		return ctx
	}
	return stdcontext.WithValue(ctx, orderIDKey{}, orderID)
}

func OrderIDFromContext(ctx stdcontext.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(orderIDKey{}).(string)
	return value
}
