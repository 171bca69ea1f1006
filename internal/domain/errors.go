// Package domain contains the core business entities and interfaces for the
// purchase service.
package domain

import "errors"

// Domain errors classify every failure the orchestrator can surface.
var (
	// ErrNetwork is a transient transport failure talking to the backend.
	// Retryable; callers must not fold it into "not purchased".
	ErrNetwork = errors.New("network error")

	// ErrBackend is a non-transient backend rejection (bad request, 5xx
	// with a body, authentication failure).
	ErrBackend = errors.New("backend error")

	// ErrGatewayUnavailable means the gateway checkout runtime is not
	// reachable or not configured. Fatal to the current attempt.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrUserDismissed marks an attempt the user abandoned from the
	// checkout widget. Expected, not a real failure.
	ErrUserDismissed = errors.New("checkout dismissed by user")

	// ErrVerificationFailed means the backend rejected the payment proof.
	// Retryable only by a fresh checkout, never by re-sending the proof.
	ErrVerificationFailed = errors.New("payment verification failed")

	// ErrIndeterminate means success and failure cannot currently be told
	// apart; only a ledger re-check resolves it.
	ErrIndeterminate = errors.New("payment outcome indeterminate")

	// ErrInvalidOrder is returned when order input data is invalid.
	ErrInvalidOrder = errors.New("invalid order data")

	// ErrAlreadyPurchased short-circuits a checkout for a course the ledger
	// already records as purchased. No payment is required.
	ErrAlreadyPurchased = errors.New("course already purchased")

	// ErrOrderSuperseded marks an event that references an order replaced
	// by a newer checkout attempt.
	ErrOrderSuperseded = errors.New("order superseded by a newer attempt")

	// ErrNoAnchor is returned by the anchor store when no pending order is
	// recorded for the user.
	ErrNoAnchor = errors.New("no pending order anchor")
)

// PurchaseError wraps a domain error with a human-reportable message and a
// machine-readable code for the API layer.
type PurchaseError struct {
	Err     error
	Message string
	Code    string
}

// Error implements the error interface.
func (e *PurchaseError) Error() string {
	if e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work with PurchaseError.
func (e *PurchaseError) Unwrap() error {
	return e.Err
}

// NewPurchaseError creates a new PurchaseError with the given error and message.
func NewPurchaseError(err error, message, code string) *PurchaseError {
	return &PurchaseError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}
