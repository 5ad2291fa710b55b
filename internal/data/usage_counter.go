package data

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adityat54544/AI-SAAS-1/internal/biz"
)

// Counter key layout and expiry in the counter store.
const (
	CacheKeyUsage   = "ai_usage"
	TTLDailyUsage   = 48 * time.Hour
	TTLMonthlyUsage = 32 * 24 * time.Hour
)

// usageCounterKey builds ai_usage:{scope}:{id}:{window}[:requests].
func usageCounterKey(scope biz.UsageScope, id, window string, requests bool) string {
	if requests {
		return BuildCacheKey(CacheKeyUsage, string(scope), id, window, "requests")
	}
	return BuildCacheKey(CacheKeyUsage, string(scope), id, window)
}

func dayWindow(now time.Time) string   { return now.UTC().Format("2006-01-02") }
func monthWindow(now time.Time) string { return now.UTC().Format("2006-01") }

// MemoryCounterRepo keeps usage counters in process memory. Windows are
// reset lazily on access: daily after 24h, monthly after one calendar month
// since the previous reset.
type MemoryCounterRepo struct {
	mu    sync.Mutex
	state map[string]*biz.UsageCounterState
}

// NewMemoryCounterRepo creates an empty in-process repo.
func NewMemoryCounterRepo() *MemoryCounterRepo {
	return &MemoryCounterRepo{state: make(map[string]*biz.UsageCounterState)}
}

var _ biz.UsageCounterRepo = (*MemoryCounterRepo)(nil)

// Load returns a copy of the current state.
func (r *MemoryCounterRepo) Load(_ context.Context, scope biz.UsageScope, id string, now time.Time) (*biz.UsageCounterState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.current(scope, id, now)
	out := *st
	return &out, nil
}

// Add charges tokens and one request.
func (r *MemoryCounterRepo) Add(_ context.Context, scope biz.UsageScope, id string, tokens int64, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.current(scope, id, now)
	st.DailyTokens += tokens
	st.MonthlyTokens += tokens
	st.DailyRequests++
	st.MonthlyRequests++
	return nil
}

// current must be called with r.mu held.
func (r *MemoryCounterRepo) current(scope biz.UsageScope, id string, now time.Time) *biz.UsageCounterState {
	key := string(scope) + ":" + id
	st, ok := r.state[key]
	if !ok {
		st = &biz.UsageCounterState{
			Scope:              scope,
			ID:                 id,
			LastDailyResetAt:   now,
			LastMonthlyResetAt: now,
		}
		r.state[key] = st
		return st
	}

	if now.Sub(st.LastDailyResetAt) >= 24*time.Hour {
		st.DailyTokens = 0
		st.DailyRequests = 0
		st.LastDailyResetAt = now
	}
	if !now.Before(addMonth(st.LastMonthlyResetAt)) {
		st.MonthlyTokens = 0
		st.MonthlyRequests = 0
		st.LastMonthlyResetAt = now
	}
	return st
}

// StoreCounterRepo keeps usage counters in a biz.CounterStore under
// per-window keys, so windows roll over at UTC day and month boundaries and
// old windows expire on their own.
type StoreCounterRepo struct {
	store biz.CounterStore
}

// NewStoreCounterRepo creates a repo over a counter store.
func NewStoreCounterRepo(store biz.CounterStore) *StoreCounterRepo {
	return &StoreCounterRepo{store: store}
}

var _ biz.UsageCounterRepo = (*StoreCounterRepo)(nil)

// Load reads the four counters of the current windows.
func (r *StoreCounterRepo) Load(ctx context.Context, scope biz.UsageScope, id string, now time.Time) (*biz.UsageCounterState, error) {
	day, month := dayWindow(now), monthWindow(now)

	st := &biz.UsageCounterState{
		Scope:              scope,
		ID:                 id,
		LastDailyResetAt:   startOfDay(now),
		LastMonthlyResetAt: startOfMonth(now),
	}

	reads := []struct {
		key string
		dst *int64
	}{
		{usageCounterKey(scope, id, day, false), &st.DailyTokens},
		{usageCounterKey(scope, id, month, false), &st.MonthlyTokens},
		{usageCounterKey(scope, id, day, true), &st.DailyRequests},
		{usageCounterKey(scope, id, month, true), &st.MonthlyRequests},
	}
	for _, rd := range reads {
		v, err := r.store.GetCounter(ctx, rd.key)
		if err != nil {
			return nil, fmt.Errorf("load usage %s/%s: %w", scope, id, err)
		}
		*rd.dst = v
	}
	return st, nil
}

// Add increments the daily and monthly counters. It keeps going after a
// failed increment and returns the first error.
func (r *StoreCounterRepo) Add(ctx context.Context, scope biz.UsageScope, id string, tokens int64, now time.Time) error {
	day, month := dayWindow(now), monthWindow(now)

	writes := []struct {
		key    string
		amount int64
		ttl    time.Duration
	}{
		{usageCounterKey(scope, id, day, false), tokens, TTLDailyUsage},
		{usageCounterKey(scope, id, month, false), tokens, TTLMonthlyUsage},
		{usageCounterKey(scope, id, day, true), 1, TTLDailyUsage},
		{usageCounterKey(scope, id, month, true), 1, TTLMonthlyUsage},
	}

	var firstErr error
	for _, w := range writes {
		if _, err := r.store.IncrementCounter(ctx, w.key, w.amount, w.ttl); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("add usage %s/%s: %w", scope, id, err)
		}
	}
	return firstErr
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// addMonth returns t one calendar month later. A day missing from the next
// month is clamped to its last day, so Jan 31 maps to Feb 28 (or 29).
func addMonth(t time.Time) time.Time {
	next := startOfMonth(t).AddDate(0, 1, 0)
	lastDay := next.AddDate(0, 1, -1).Day()
	day := t.UTC().Day()
	if day > lastDay {
		day = lastDay
	}
	u := t.UTC()
	return time.Date(next.Year(), next.Month(), day, u.Hour(), u.Minute(), u.Second(), u.Nanosecond(), time.UTC)
}

func startOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
