package biz

import (
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	// CircuitClosed admits every call.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the recovery timeout elapses.
	CircuitOpen
	// CircuitHalfOpen admits a limited number of probe calls.
	CircuitHalfOpen
)

// String returns the state name used in logs and API responses.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Circuit breaker defaults.
const (
	DefaultFailureThreshold  = 5
	DefaultRecoveryTimeout   = 60 * time.Second
	DefaultHalfOpenMaxProbes = 3
)

// CircuitBreakerConfig configures a CircuitBreaker. Zero values fall back to
// the defaults.
type CircuitBreakerConfig struct {
	FailureThreshold  int
	RecoveryTimeout   time.Duration
	HalfOpenMaxProbes int
}

// CircuitSnapshot is a point-in-time view of a breaker.
type CircuitSnapshot struct {
	State             CircuitState  `json:"-"`
	StateName         string        `json:"state"`
	FailureCount      int           `json:"failure_count"`
	LastFailureAt     time.Time     `json:"last_failure_at"`
	RecoveryTimeout   time.Duration `json:"-"`
	RecoverySeconds   float64       `json:"recovery_timeout_seconds"`
	HalfOpenProbes    int           `json:"half_open_probes"`
	HalfOpenMaxProbes int           `json:"half_open_max_probes"`
}

// StateChangeFunc is called after every state transition, outside the
// breaker lock. On HalfOpen to Closed, snap.HalfOpenProbes holds the number
// of probes admitted during recovery.
type StateChangeFunc func(from, to CircuitState, snap CircuitSnapshot)

// CircuitBreaker gates calls to one upstream dependency.
//
// State machine:
//
//	Closed   --failures reach threshold-->  Open
//	Open     --recovery timeout elapsed-->  HalfOpen (observed by CanExecute)
//	HalfOpen --success-->                   Closed
//	HalfOpen --failure-->                   Open
//
// All mutations happen under one mutex so state and counters change together.
type CircuitBreaker struct {
	mu sync.Mutex

	state          CircuitState
	failureCount   int
	lastFailureAt  time.Time
	halfOpenProbes int

	failureThreshold  int
	recoveryTimeout   time.Duration
	halfOpenMaxProbes int

	now       func() time.Time
	listeners []StateChangeFunc
	logger    *log.Helper
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig, logger log.Logger) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if cfg.HalfOpenMaxProbes <= 0 {
		cfg.HalfOpenMaxProbes = DefaultHalfOpenMaxProbes
	}
	return &CircuitBreaker{
		state:             CircuitClosed,
		failureThreshold:  cfg.FailureThreshold,
		recoveryTimeout:   cfg.RecoveryTimeout,
		halfOpenMaxProbes: cfg.HalfOpenMaxProbes,
		now:               time.Now,
		logger:            log.NewHelper(logger),
	}
}

// SetClock replaces the time source. Intended for tests.
func (cb *CircuitBreaker) SetClock(now func() time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.now = now
}

// OnStateChange registers fn to be called after every transition.
func (cb *CircuitBreaker) OnStateChange(fn StateChangeFunc) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.listeners = append(cb.listeners, fn)
}

// CanExecute reports whether a call may proceed. An Open breaker whose
// recovery timeout has elapsed moves to HalfOpen here; that admission is the
// first probe.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()

	switch cb.state {
	case CircuitClosed:
		cb.mu.Unlock()
		return true

	case CircuitOpen:
		if cb.now().Sub(cb.lastFailureAt) < cb.recoveryTimeout {
			cb.mu.Unlock()
			return false
		}
		cb.state = CircuitHalfOpen
		cb.halfOpenProbes = 1
		snap, listeners := cb.snapshotLocked(), cb.listeners
		cb.mu.Unlock()

		cb.logger.Infow("msg", "circuit breaker half-open, probing upstream",
			"failure_count", snap.FailureCount,
			"max_probes", snap.HalfOpenMaxProbes)
		notify(listeners, CircuitOpen, CircuitHalfOpen, snap)
		return true

	case CircuitHalfOpen:
		defer cb.mu.Unlock()
		if cb.halfOpenProbes < cb.halfOpenMaxProbes {
			cb.halfOpenProbes++
			return true
		}
		return false
	}

	cb.mu.Unlock()
	return false
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()

	switch cb.state {
	case CircuitHalfOpen:
		probes := cb.halfOpenProbes
		cb.state = CircuitClosed
		cb.failureCount = 0
		cb.halfOpenProbes = 0
		snap, listeners := cb.snapshotLocked(), cb.listeners
		snap.HalfOpenProbes = probes
		cb.mu.Unlock()

		cb.logger.Infow("msg", "circuit breaker closed, upstream recovered",
			"probe_count", probes)
		notify(listeners, CircuitHalfOpen, CircuitClosed, snap)
		return

	case CircuitClosed:
		cb.failureCount = 0
	}

	cb.mu.Unlock()
}

// ReleaseProbe returns a HalfOpen probe slot without settling the state.
// Used when the upstream answered but the call neither proves recovery
// nor counts as a failure, such as a rejected request.
func (cb *CircuitBreaker) ReleaseProbe() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitHalfOpen && cb.halfOpenProbes > 0 {
		cb.halfOpenProbes--
	}
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()

	cb.failureCount++
	cb.lastFailureAt = cb.now()

	from := cb.state
	switch cb.state {
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.halfOpenProbes = 0
	case CircuitClosed:
		if cb.failureCount >= cb.failureThreshold {
			cb.state = CircuitOpen
		}
	}

	if cb.state == from {
		cb.mu.Unlock()
		return
	}

	snap, listeners := cb.snapshotLocked(), cb.listeners
	cb.mu.Unlock()

	cb.logger.Warnw("msg", "circuit breaker opened",
		"from", from.String(),
		"failure_count", snap.FailureCount,
		"threshold", cb.failureThreshold,
		"recovery_timeout", snap.RecoveryTimeout.String())
	notify(listeners, from, CircuitOpen, snap)
}

// Reset forces the breaker back to Closed with cleared counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = CircuitClosed
	cb.failureCount = 0
	cb.halfOpenProbes = 0
	cb.lastFailureAt = time.Time{}
	snap, listeners := cb.snapshotLocked(), cb.listeners
	cb.mu.Unlock()

	if from != CircuitClosed {
		cb.logger.Infow("msg", "circuit breaker reset", "from", from.String())
		notify(listeners, from, CircuitClosed, snap)
	}
}

// State returns the current state without triggering transitions.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Snapshot returns the current breaker state for observability.
func (cb *CircuitBreaker) Snapshot() CircuitSnapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.snapshotLocked()
}

func (cb *CircuitBreaker) snapshotLocked() CircuitSnapshot {
	return CircuitSnapshot{
		State:             cb.state,
		StateName:         cb.state.String(),
		FailureCount:      cb.failureCount,
		LastFailureAt:     cb.lastFailureAt,
		RecoveryTimeout:   cb.recoveryTimeout,
		RecoverySeconds:   cb.recoveryTimeout.Seconds(),
		HalfOpenProbes:    cb.halfOpenProbes,
		HalfOpenMaxProbes: cb.halfOpenMaxProbes,
	}
}

func notify(listeners []StateChangeFunc, from, to CircuitState, snap CircuitSnapshot) {
	for _, fn := range listeners {
		fn(from, to, snap)
	}
}
