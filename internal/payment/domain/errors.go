package domain

import "errors"

var (
	ErrMissingOrderID      = errors.New("orderId is required")
	ErrInvalidAmount       = errors.New("amount must be a positive number")
	ErrInvalidCurrency     = errors.New("currency must be a three letter code")
	ErrAlreadyPaid         = errors.New("order is already paid")
	ErrSchemaUnavailable   = errors.New("order payment columns are unavailable")
	ErrTooManyAttempts     = errors.New("too many payment attempts")
	ErrSessionInProgress   = errors.New("payment session already in progress")
	ErrCorrelationNotSaved = errors.New("checkout session could not be recorded")
)
