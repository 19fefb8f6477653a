// Package errors provides common domain error types for the EmailPilot query core.
//
// This package defines sentinel errors for common domain conditions like "not found"
// or "precondition failed" that can be used across all packages. Using typed errors
// enables consistent error handling patterns with errors.Is() checks, and the
// GatewayError wrapper carries the category information the executor's retry policy
// keys off.
//
// Usage:
//
//	import eperrors "github.com/emailpilot/epctl/pkg/errors"
//
//	// Return a domain error
//	return nil, eperrors.ErrPrecondition
//
//	// Check for domain errors
//	if eperrors.IsPrecondition(err) {
//	    // fail the single request closed, no network call
//	}
package errors

import "errors"

// Domain errors - common sentinel errors for domain conditions.
var (
	// ErrNotFound indicates the requested resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input or validation failure.
	ErrValidation = errors.New("validation error")

	// ErrPrecondition indicates a request precondition was not met
	// (e.g. a revenue query without a configured conversion metric ID).
	ErrPrecondition = errors.New("precondition failed")

	// ErrNoAPIKey indicates no API key is stored for the client.
	ErrNoAPIKey = errors.New("no API key configured for client")

	// ErrRateLimited indicates the upstream gateway returned a rate-limit response.
	ErrRateLimited = errors.New("rate limited")

	// ErrGatewayTimeout indicates an upstream call exceeded its deadline.
	ErrGatewayTimeout = errors.New("gateway timeout")

	// ErrGatewayUnavailable indicates the upstream gateway returned a 5xx or
	// was unreachable.
	ErrGatewayUnavailable = errors.New("gateway unavailable")
)

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsPrecondition reports whether any error in err's chain is ErrPrecondition.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrPrecondition)
}

// IsNoAPIKey reports whether any error in err's chain is ErrNoAPIKey.
func IsNoAPIKey(err error) bool {
	return errors.Is(err, ErrNoAPIKey)
}

// IsRateLimited reports whether any error in err's chain is ErrRateLimited.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsGatewayTimeout reports whether any error in err's chain is ErrGatewayTimeout.
func IsGatewayTimeout(err error) bool {
	return errors.Is(err, ErrGatewayTimeout)
}

// IsGatewayUnavailable reports whether any error in err's chain is ErrGatewayUnavailable.
func IsGatewayUnavailable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable)
}

// ErrorCategory categorizes gateway errors for retry decisions.
type ErrorCategory string

const (
	// CategoryTransient indicates a temporary error that should be retried.
	CategoryTransient ErrorCategory = "transient"
	// CategoryPermanent indicates an error that will not be resolved by retry.
	CategoryPermanent ErrorCategory = "permanent"
	// CategoryPrecondition indicates a request that failed closed before any
	// network call was made.
	CategoryPrecondition ErrorCategory = "precondition"
)

// GatewayError wraps errors from the metrics/tool gateway with category
// information used by the request-local retry policy.
type GatewayError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Err      error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error should trigger a retry.
func (e *GatewayError) IsRetryable() bool {
	return e.Category == CategoryTransient
}

// NewTransientError creates a new transient gateway error.
func NewTransientError(code, message string, err error) *GatewayError {
	return &GatewayError{
		Category: CategoryTransient,
		Code:     code,
		Message:  message,
		Err:      err,
	}
}

// NewPermanentError creates a new permanent gateway error.
func NewPermanentError(code, message string, err error) *GatewayError {
	return &GatewayError{
		Category: CategoryPermanent,
		Code:     code,
		Message:  message,
		Err:      err,
	}
}

// NewPreconditionError creates an error for a request that fails closed
// without reaching the gateway.
func NewPreconditionError(code, message string) *GatewayError {
	return &GatewayError{
		Category: CategoryPrecondition,
		Code:     code,
		Message:  message,
		Err:      ErrPrecondition,
	}
}

// Retryable reports whether err should trigger a retry. It checks for a
// GatewayError category first, then falls back to the sentinel transient errors.
func Retryable(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.IsRetryable()
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrGatewayTimeout) ||
		errors.Is(err, ErrGatewayUnavailable)
}
