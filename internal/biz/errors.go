package biz

import (
	"errors"
	"fmt"
)

// Quota types reported by QuotaExceededError, in check order.
const (
	QuotaPerTask     = "per_task"
	QuotaDailyUser   = "daily_user"
	QuotaDailyRepo   = "daily_repo"
	QuotaMonthlyUser = "monthly_user"
	QuotaMonthlyOrg  = "monthly_org"
)

// CircuitOpenError is returned without calling the upstream when the
// circuit breaker denies execution. It is never retried.
type CircuitOpenError struct {
	Operation string
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker is open for %s", e.Operation)
}

// AIClientError is an upstream failure. Retryable errors are retried by the
// invoker; once an AIClientError reaches a caller it is always terminal.
type AIClientError struct {
	Message   string
	Retryable bool
	Err       error
}

// NewAIClientError creates a non-retryable AIClientError.
func NewAIClientError(message string, err error) *AIClientError {
	return &AIClientError{Message: message, Err: err}
}

// Error implements the error interface.
func (e *AIClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *AIClientError) Unwrap() error {
	return e.Err
}

// QuotaExceededError is returned by CheckQuota for the first violated limit.
type QuotaExceededError struct {
	QuotaType string
	Limit     int64
	Current   int64
	Requested int64
}

// Error implements the error interface.
func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded: %s current=%d requested=%d limit=%d",
		e.QuotaType, e.Current, e.Requested, e.Limit)
}

// Overage returns how many tokens the request is over the limit.
func (e *QuotaExceededError) Overage() int64 {
	return e.Current + e.Requested - e.Limit
}

// ErrInvalidRequest is returned for gateway requests missing required fields.
var ErrInvalidRequest = errors.New("invalid request")

// ErrAttemptPanicked wraps a panic raised inside an upstream call.
var ErrAttemptPanicked = errors.New("upstream call panicked")

// IsCircuitOpen reports whether err is, or wraps, a CircuitOpenError.
func IsCircuitOpen(err error) bool {
	var target *CircuitOpenError
	return errors.As(err, &target)
}

// IsRetryable reports whether err should be retried by the invoker. Only an
// AIClientError explicitly marked non-retryable and decision errors are
// terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var circuitErr *CircuitOpenError
	if errors.As(err, &circuitErr) {
		return false
	}
	var quotaErr *QuotaExceededError
	if errors.As(err, &quotaErr) {
		return false
	}
	var clientErr *AIClientError
	if errors.As(err, &clientErr) {
		return clientErr.Retryable
	}
	return true
}
