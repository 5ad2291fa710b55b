package biz

import (
	"math"
	"math/rand"
	"time"
)

// Retry defaults.
const (
	DefaultMaxRetries      = 3
	DefaultBaseDelay       = 1 * time.Second
	DefaultMaxDelay        = 30 * time.Second
	DefaultExponentialBase = 2.0

	// maxJitterFraction is the largest share added on top of the delay.
	maxJitterFraction = 0.25
)

// RetryPolicy computes backoff delays. It never sleeps.
type RetryPolicy struct {
	MaxRetries      int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
	Jitter          bool

	// rand returns a value in [0,1); nil uses math/rand.
	rand func() float64
}

// DefaultRetryPolicy returns the default policy with jitter enabled.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      DefaultMaxRetries,
		BaseDelay:       DefaultBaseDelay,
		MaxDelay:        DefaultMaxDelay,
		ExponentialBase: DefaultExponentialBase,
		Jitter:          true,
	}
}

// WithRand returns a copy of p using fn as the jitter source.
func (p RetryPolicy) WithRand(fn func() float64) RetryPolicy {
	p.rand = fn
	return p
}

// Delay returns the wait before retry number attempt+1:
// min(base * exp^attempt, max), then multiplied by 1+U[0,1)*0.25 when jitter
// is enabled. Jitter never shortens the delay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(p.BaseDelay) * math.Pow(p.ExponentialBase, float64(attempt))
	if delay > float64(p.MaxDelay) || math.IsInf(delay, 0) || math.IsNaN(delay) {
		delay = float64(p.MaxDelay)
	}

	if p.Jitter {
		r := p.rand
		if r == nil {
			r = rand.Float64
		}
		delay *= 1 + r()*maxJitterFraction
	}

	return time.Duration(delay)
}

// Attempts returns the total number of attempts the policy allows.
func (p RetryPolicy) Attempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}
