package server

import (
	"errors"
	"net/http"

	"github.com/Mujanati13/Qabalan-sub007/internal/mpgs"
	orderdomain "github.com/Mujanati13/Qabalan-sub007/internal/order/domain"
	paymentdomain "github.com/Mujanati13/Qabalan-sub007/internal/payment/domain"
	"github.com/gin-gonic/gin"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidRequest = errors.New("invalid_request")
)

// errorResponse is the JSON failure body of every payment endpoint. Gateway
// and persistence detail stays in the logs.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type mappedError struct {
	status  int
	kind    string
	message string
}

func mapError(err error) mappedError {
	switch {
	case err == nil:
		return mappedError{http.StatusInternalServerError, "internal_error", "internal server error"}
	case errors.Is(err, ErrUnauthorized):
		return mappedError{http.StatusUnauthorized, "unauthorized", "unauthorized"}
	case errors.Is(err, ErrInvalidRequest):
		return mappedError{http.StatusBadRequest, "validation_error", "invalid request"}
	case errors.Is(err, paymentdomain.ErrMissingOrderID),
		errors.Is(err, orderdomain.ErrInvalidOrder),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidCurrency):
		return mappedError{http.StatusBadRequest, "validation_error", err.Error()}
	case errors.Is(err, orderdomain.ErrOrderNotFound):
		return mappedError{http.StatusNotFound, "not_found", "order not found"}
	case errors.Is(err, paymentdomain.ErrAlreadyPaid):
		return mappedError{http.StatusConflict, "conflict", err.Error()}
	case errors.Is(err, paymentdomain.ErrSessionInProgress):
		return mappedError{http.StatusConflict, "conflict", err.Error()}
	case errors.Is(err, paymentdomain.ErrTooManyAttempts):
		return mappedError{http.StatusTooManyRequests, "rate_limited", err.Error()}
	case errors.Is(err, mpgs.ErrConfiguration):
		return mappedError{http.StatusInternalServerError, "configuration_error", "payment initialization failed"}
	case errors.Is(err, mpgs.ErrGatewayRejected):
		return mappedError{http.StatusBadGateway, "gateway_rejected", "payment initialization failed"}
	case errors.Is(err, mpgs.ErrGatewayUnreachable):
		return mappedError{http.StatusBadGateway, "gateway_unreachable", "payment initialization failed"}
	case errors.Is(err, mpgs.ErrGatewayProtocol):
		return mappedError{http.StatusBadGateway, "gateway_protocol_error", "payment initialization failed"}
	case errors.Is(err, paymentdomain.ErrSchemaUnavailable):
		return mappedError{http.StatusServiceUnavailable, "service_unavailable", "payment service unavailable"}
	case errors.Is(err, paymentdomain.ErrCorrelationNotSaved):
		return mappedError{http.StatusInternalServerError, "persistence_error", "payment initialization failed"}
	default:
		return mappedError{http.StatusInternalServerError, "internal_error", "internal server error"}
	}
}

// respondError records err for the request log and writes the JSON failure
// body.
func respondError(c *gin.Context, err error) {
	mapped := mapError(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(mapped.status, errorResponse{
		Success: false,
		Error:   mapped.message,
		Details: mapped.kind,
	})
}

func classifyErrorForLog(err error) (string, string) {
	mapped := mapError(err)
	code := mapped.kind
	if rejected, ok := mpgs.AsRejected(err); ok && rejected.Cause != "" {
		code = rejected.Cause
	}
	return mapped.kind, code
}
