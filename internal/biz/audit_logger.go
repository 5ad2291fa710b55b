package biz

import (
	"context"
	"sync"
	"time"
)

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	AuditEventCircuitBroken    AuditEventType = "CIRCUIT_BROKEN"
	AuditEventCircuitHalfOpen  AuditEventType = "CIRCUIT_HALF_OPEN"
	AuditEventCircuitRecovered AuditEventType = "CIRCUIT_RECOVERED"
	AuditEventCircuitReset     AuditEventType = "CIRCUIT_RESET"
)

// AuditLogger records circuit breaker transitions of an upstream.
type AuditLogger interface {
	// LogCircuitBroken logs circuit breaker triggered event
	LogCircuitBroken(ctx context.Context, upstream string, failureCount int, brokenAt time.Time)

	// LogCircuitHalfOpen logs the first recovery probe being admitted
	LogCircuitHalfOpen(ctx context.Context, upstream string, openFor time.Duration)

	// LogCircuitRecovered logs circuit breaker recovered event
	LogCircuitRecovered(ctx context.Context, upstream string, recoverTime time.Duration, probeCount int)

	// LogCircuitReset logs a manual reset
	LogCircuitReset(ctx context.Context, upstream string, from CircuitState)
}

// WatchCircuit writes an audit event for every transition of breaker.
func WatchCircuit(breaker *CircuitBreaker, upstream string, audit AuditLogger) {
	if audit == nil {
		return
	}

	var (
		mu       sync.Mutex
		openedAt time.Time
	)
	breaker.OnStateChange(func(from, to CircuitState, snap CircuitSnapshot) {
		ctx := context.Background()
		mu.Lock()
		defer mu.Unlock()

		switch {
		case to == CircuitOpen:
			if from == CircuitClosed {
				openedAt = snap.LastFailureAt
			}
			audit.LogCircuitBroken(ctx, upstream, snap.FailureCount, snap.LastFailureAt)
		case to == CircuitHalfOpen:
			audit.LogCircuitHalfOpen(ctx, upstream, time.Since(snap.LastFailureAt))
		case to == CircuitClosed && from == CircuitHalfOpen:
			var recoverTime time.Duration
			if !openedAt.IsZero() {
				recoverTime = time.Since(openedAt)
			}
			audit.LogCircuitRecovered(ctx, upstream, recoverTime, snap.HalfOpenProbes)
			openedAt = time.Time{}
		case to == CircuitClosed:
			audit.LogCircuitReset(ctx, upstream, from)
			openedAt = time.Time{}
		}
	})
}
