package domain

import "errors"

var (
	// Validation
	ErrInvalidQty           = errors.New("invalid quantity")
	ErrInvalidID            = errors.New("invalid id")
	ErrMissingField         = errors.New("missing field")
	ErrInvalidPaymentStatus = errors.New("invalid payment status")

	// Not found
	ErrProductNotFound    = errors.New("product not found")
	ErrHoldNotFound       = errors.New("hold not found")
	ErrOrderNotFound      = errors.New("order not found")
	ErrWebhookLogNotFound = errors.New("webhook log not found")

	// Stock / hold lifecycle
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrHoldAlreadyUsed   = errors.New("hold already used")
	ErrHoldReleased      = errors.New("hold released")
	ErrHoldExpired       = errors.New("hold expired")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrCannotCancelPaid  = errors.New("cannot cancel paid order")

	// Contention
	ErrHighContention = errors.New("high contention")
	ErrDeadlock       = errors.New("transient deadlock")

	// Webhook settlement (informational, not failures)
	ErrAlreadyProcessed = errors.New("already processed")
	ErrPendingOrder     = errors.New("pending order")
)
