package mpgs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration        = errors.New("mpgs: gateway credentials are not configured")
	ErrGatewayUnreachable   = errors.New("mpgs: gateway unreachable")
	ErrGatewayRejected      = errors.New("mpgs: gateway rejected request")
	ErrGatewayProtocol      = errors.New("mpgs: unexpected gateway response")
	ErrUnrecognizedResponse = fmt.Errorf("%w: unrecognized session response shape", ErrGatewayProtocol)
	ErrInvalidRequest       = errors.New("mpgs: invalid request")
)

// RejectedError is a structured rejection returned by the gateway. Explanation
// carries error.explanation from the response body.
type RejectedError struct {
	StatusCode     int
	Cause          string
	Explanation    string
	Field          string
	ValidationType string
}

func (e *RejectedError) Error() string {
	parts := []string{"mpgs: gateway rejected request"}
	if e.Cause != "" {
		parts = append(parts, e.Cause)
	}
	if e.Explanation != "" {
		parts = append(parts, e.Explanation)
	}
	return strings.Join(parts, ": ")
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrGatewayRejected
}

// Mentions reports whether the rejection names the given field, either in the
// structured field attribute or in the explanation text.
func (e *RejectedError) Mentions(field string) bool {
	field = strings.ToLower(field)
	return strings.Contains(strings.ToLower(e.Field), field) ||
		strings.Contains(strings.ToLower(e.Explanation), field)
}

// UnreachableError wraps a transport failure (timeout, DNS, TLS, reset).
type UnreachableError struct {
	Operation string
	Err       error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("mpgs: %s: gateway unreachable: %v", e.Operation, e.Err)
}

func (e *UnreachableError) Unwrap() []error {
	return []error{ErrGatewayUnreachable, e.Err}
}

// AsRejected returns the gateway rejection carried by err, if any.
func AsRejected(err error) (*RejectedError, bool) {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected, true
	}
	return nil, false
}
