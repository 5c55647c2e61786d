package shared

import "errors"

// Sentinel errors shared across the trading core. Handlers map these onto HTTP
// statuses in platform/httpx; services wrap them with context via fmt.Errorf.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("resource not found")
	// ErrForbidden indicates the actor is not a party to the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition indicates an illegal or stale status change.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInsufficientStock indicates the availability check failed.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConcurrencyConflict indicates an atomic update lost a write race after retries.
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
	// ErrTransactionFailed indicates a transition unit could not be applied.
	ErrTransactionFailed = errors.New("transaction could not be applied")
)
