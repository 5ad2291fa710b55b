package biz

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// Invoker composes a CircuitBreaker and a RetryPolicy around upstream calls.
// One Invoker protects one upstream dependency and is shared by all callers.
type Invoker struct {
	breaker *CircuitBreaker
	policy  RetryPolicy
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *log.Helper

	requests     atomic.Int64
	errors       atomic.Int64
	totalLatency atomic.Int64 // nanoseconds
}

// NewInvoker creates an Invoker.
func NewInvoker(breaker *CircuitBreaker, policy RetryPolicy, logger log.Logger) *Invoker {
	return &Invoker{
		breaker: breaker,
		policy:  policy,
		sleep:   sleepContext,
		logger:  log.NewHelper(logger),
	}
}

// Breaker returns the breaker guarding the upstream.
func (inv *Invoker) Breaker() *CircuitBreaker {
	return inv.breaker
}

// Policy returns the retry policy.
func (inv *Invoker) Policy() RetryPolicy {
	return inv.policy
}

// InvokerMetrics are process-lifetime counters of an Invoker.
type InvokerMetrics struct {
	TotalRequests int64           `json:"total_requests"`
	TotalErrors   int64           `json:"total_errors"`
	ErrorRate     float64         `json:"error_rate"`
	AvgLatencyMs  float64         `json:"avg_latency_ms"`
	Circuit       CircuitSnapshot `json:"circuit_breaker"`
}

// Metrics returns request, error and latency counters plus the breaker
// snapshot.
func (inv *Invoker) Metrics() InvokerMetrics {
	requests := inv.requests.Load()
	errs := inv.errors.Load()

	m := InvokerMetrics{
		TotalRequests: requests,
		TotalErrors:   errs,
		Circuit:       inv.breaker.Snapshot(),
	}
	if requests > 0 {
		m.ErrorRate = float64(errs) / float64(requests)
		m.AvgLatencyMs = float64(inv.totalLatency.Load()) / float64(requests) / float64(time.Millisecond)
	}
	return m
}

type attemptResult[T any] struct {
	value T
	err   error
}

// Execute runs op through the breaker and retry policy of inv.
//
// Each attempt is bounded by timeout (none when timeout <= 0). Timeouts and
// other errors count as breaker failures and are retried, except an
// AIClientError marked non-retryable, which is returned at once. When the
// breaker denies an attempt Execute returns *CircuitOpenError without calling
// op. Exhausting all attempts returns a non-retryable *AIClientError wrapping
// the last failure.
func Execute[T any](ctx context.Context, inv *Invoker, name string, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	inv.requests.Add(1)

	value, err := execute(ctx, inv, name, timeout, op)

	inv.totalLatency.Add(int64(time.Since(start)))
	if err != nil {
		inv.errors.Add(1)
	}
	return value, err
}

func execute[T any](ctx context.Context, inv *Invoker, name string, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := inv.policy.Attempts()
	for attempt := 0; attempt < attempts; attempt++ {
		if !inv.breaker.CanExecute() {
			inv.logger.Warnw("msg", "circuit breaker rejected call",
				"operation", name,
				"attempt", attempt+1)
			return zero, &CircuitOpenError{Operation: name}
		}

		if attempt > 0 {
			delay := inv.policy.Delay(attempt - 1)
			inv.logger.Infow("msg", "retrying upstream call",
				"operation", name,
				"attempt", attempt+1,
				"max_attempts", attempts,
				"delay", delay.String(),
				"last_error", errString(lastErr))

			if err := inv.sleep(ctx, delay); err != nil {
				inv.breaker.RecordFailure()
				return zero, NewAIClientError(fmt.Sprintf("%s cancelled during backoff", name), err)
			}
		}

		value, err := runAttempt(ctx, timeout, op)
		if err == nil {
			inv.breaker.RecordSuccess()
			return value, nil
		}

		// Caller went away: settle the breaker and stop.
		if ctx.Err() != nil {
			inv.breaker.RecordFailure()
			return zero, NewAIClientError(fmt.Sprintf("%s cancelled", name), ctx.Err())
		}

		if errors.Is(err, context.DeadlineExceeded) {
			inv.breaker.RecordFailure()
			lastErr = fmt.Errorf("%s timed out after %s: %w", name, timeout, err)
			inv.logger.Warnw("msg", "upstream call timed out",
				"operation", name,
				"attempt", attempt+1,
				"timeout", timeout.String())
			continue
		}

		if !IsRetryable(err) {
			inv.breaker.ReleaseProbe()
			inv.logger.Warnw("msg", "upstream call failed with non-retryable error",
				"operation", name,
				"attempt", attempt+1,
				"error", err)
			return zero, err
		}

		inv.breaker.RecordFailure()
		lastErr = err
		inv.logger.Warnw("msg", "upstream call failed",
			"operation", name,
			"attempt", attempt+1,
			"error", err)
	}

	inv.logger.Errorw("msg", "all retries exhausted",
		"operation", name,
		"attempts", attempts,
		"error", errString(lastErr))
	return zero, NewAIClientError(fmt.Sprintf("all retries exhausted for %s", name), lastErr)
}

// runAttempt runs op and returns when it finishes or the attempt deadline
// passes, whichever comes first. A panic in op becomes a retryable error. An op that ignores its context keeps
// running in the background; its result is discarded.
func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan attemptResult[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult[T]{err: fmt.Errorf("%w: %v", ErrAttemptPanicked, r)}
			}
		}()
		v, err := op(attemptCtx)
		done <- attemptResult[T]{value: v, err: err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-attemptCtx.Done():
		var zero T
		return zero, attemptCtx.Err()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
