package biz

import (
	"context"
	"time"
)

// UsageScope is the dimension a usage counter is kept for.
type UsageScope string

const (
	ScopeCaller     UsageScope = "user"
	ScopeRepository UsageScope = "repo"
	ScopeOrg        UsageScope = "org"
)

// ParseUsageScope maps an API path segment to a scope.
func ParseUsageScope(s string) (UsageScope, bool) {
	switch UsageScope(s) {
	case ScopeCaller, ScopeRepository, ScopeOrg:
		return UsageScope(s), true
	}
	return "", false
}

// UsageCounterState is the running consumption of one (scope, id) pair.
// Rows are created lazily, reset in place when a window boundary has
// passed, and never deleted.
type UsageCounterState struct {
	Scope              UsageScope `json:"scope"`
	ID                 string     `json:"id"`
	DailyTokens        int64      `json:"daily_tokens"`
	MonthlyTokens      int64      `json:"monthly_tokens"`
	DailyRequests      int64      `json:"daily_requests"`
	MonthlyRequests    int64      `json:"monthly_requests"`
	LastDailyResetAt   time.Time  `json:"last_daily_reset_at"`
	LastMonthlyResetAt time.Time  `json:"last_monthly_reset_at"`
}

// UsageCounterRepo stores usage counters.
// Following Kratos v2 DDD architecture, interfaces are defined in biz layer.
// Implementations are in data layer (data.MemoryCounterRepo, data.StoreCounterRepo).
type UsageCounterRepo interface {
	// Load returns the state for (scope, id) as of now, creating it and
	// applying due window resets first.
	Load(ctx context.Context, scope UsageScope, id string, now time.Time) (*UsageCounterState, error)

	// Add charges tokens and one request to (scope, id).
	Add(ctx context.Context, scope UsageScope, id string, tokens int64, now time.Time) error
}

// CounterStore is a networked integer counter store. Increments must be
// atomic and set the expiry on every call.
type CounterStore interface {
	GetCounter(ctx context.Context, key string) (int64, error)
	IncrementCounter(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error)
}

// UsageRecordSink receives completed usage records. Save must not block the
// caller for long and must not fail the request.
type UsageRecordSink interface {
	Save(ctx context.Context, record *UsageRecord)
}
