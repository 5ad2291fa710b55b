package biz

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"

	"github.com/adityat54544/AI-SAAS-1/pkg/tokens"
)

// Caller tiers.
const (
	TierFree       = "free"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// IsPaidTier reports whether tier may use higher-capability models.
func IsPaidTier(tier string) bool {
	return tier == TierPro || tier == TierEnterprise
}

// Usage kinds recorded on UsageRecord.
const (
	UsageKindGeneration = "generation"
	UsageKindAnalysis   = "analysis"
	UsageKindCIGen      = "ci_generation"
)

// Per-1K token rates used for usage cost estimates.
var modelPricing = map[string]float64{
	"gemini-1.5-flash": 0.00001875,
	"gemini-1.5-pro":   0.00125,
	"gemini-2.5-pro":   0.00125,
}

// DefaultCostPer1KTokens is charged for models missing from the pricing table.
const DefaultCostPer1KTokens = 0.0001

// CostPer1KTokens returns the per-1K token rate of model.
func CostPer1KTokens(model string) float64 {
	if rate, ok := modelPricing[model]; ok {
		return rate
	}
	return DefaultCostPer1KTokens
}

// UsageQuota holds token limits. A limit <= 0 disables that check.
type UsageQuota struct {
	MaxTokensPerTask         int64 `json:"max_tokens_per_task"`
	DailyTokensPerCaller     int64 `json:"daily_tokens_per_caller"`
	DailyTokensPerRepository int64 `json:"daily_tokens_per_repository"`
	MonthlyTokensPerCaller   int64 `json:"monthly_tokens_per_caller"`
	MonthlyTokensPerOrg      int64 `json:"monthly_tokens_per_org"`
}

// DefaultUsageQuota returns the default limits.
func DefaultUsageQuota() UsageQuota {
	return UsageQuota{
		MaxTokensPerTask:         32000,
		DailyTokensPerCaller:     100000,
		DailyTokensPerRepository: 500000,
		MonthlyTokensPerCaller:   2000000,
		MonthlyTokensPerOrg:      10000000,
	}
}

// UsageGuardConfig configures a UsageGuard.
type UsageGuardConfig struct {
	Quota            UsageQuota
	DefaultModel     string
	CapableModel     string
	UpgradeThreshold float64
}

// UsageRecord is the immutable fact of one completed call.
type UsageRecord struct {
	CallerID       string    `json:"caller_id"`
	RepositoryID   string    `json:"repository_id,omitempty"`
	OrgID          string    `json:"org_id,omitempty"`
	UsageKind      string    `json:"usage_kind"`
	TokensConsumed int64     `json:"tokens_consumed"`
	ModelName      string    `json:"model_name"`
	Timestamp      time.Time `json:"timestamp"`
	RequestID      string    `json:"request_id"`
	EstimatedCost  float64   `json:"estimated_cost"`
}

// UsageInput describes a completed call to be recorded.
type UsageInput struct {
	CallerID     string
	RepositoryID string
	OrgID        string
	UsageKind    string
	TokensUsed   int64
	ModelName    string
	RequestID    string
}

// UsageGuard enforces token quotas before upstream calls and records
// consumption after them.
//
// Quota enforcement is a soft limit: concurrent requests may all pass
// CheckQuota before any of them is recorded.
type UsageGuard struct {
	cfg    UsageGuardConfig
	repo   UsageCounterRepo
	sink   UsageRecordSink
	now    func() time.Time
	logger *log.Helper
}

// NewUsageGuard creates a UsageGuard. sink may be nil.
func NewUsageGuard(cfg UsageGuardConfig, repo UsageCounterRepo, sink UsageRecordSink, logger log.Logger) *UsageGuard {
	if cfg.UpgradeThreshold == 0 {
		cfg.UpgradeThreshold = 0.8
	}
	return &UsageGuard{
		cfg:    cfg,
		repo:   repo,
		sink:   sink,
		now:    time.Now,
		logger: log.NewHelper(logger),
	}
}

// SetClock replaces the time source. Intended for tests.
func (g *UsageGuard) SetClock(now func() time.Time) {
	g.now = now
}

// Quota returns the configured limits.
func (g *UsageGuard) Quota() UsageQuota {
	return g.cfg.Quota
}

// CheckQuota returns nil when requested tokens fit every configured limit,
// or a *QuotaExceededError for the first violated one. Limits are checked
// per task, daily per caller, daily per repository, monthly per caller,
// then monthly per org. A request landing exactly on a limit is accepted.
//
// Counter store failures are logged and the affected checks skipped
// (graceful degradation).
func (g *UsageGuard) CheckQuota(ctx context.Context, callerID, repositoryID, orgID string, requested int64) error {
	q := g.cfg.Quota

	if q.MaxTokensPerTask > 0 && requested > q.MaxTokensPerTask {
		return g.exceeded(QuotaPerTask, q.MaxTokensPerTask, 0, requested, callerID)
	}

	now := g.now()

	var caller *UsageCounterState
	if q.DailyTokensPerCaller > 0 || q.MonthlyTokensPerCaller > 0 {
		caller = g.load(ctx, ScopeCaller, callerID, now)
	}

	if caller != nil && q.DailyTokensPerCaller > 0 && caller.DailyTokens+requested > q.DailyTokensPerCaller {
		return g.exceeded(QuotaDailyUser, q.DailyTokensPerCaller, caller.DailyTokens, requested, callerID)
	}

	if repositoryID != "" && q.DailyTokensPerRepository > 0 {
		repo := g.load(ctx, ScopeRepository, repositoryID, now)
		if repo != nil && repo.DailyTokens+requested > q.DailyTokensPerRepository {
			return g.exceeded(QuotaDailyRepo, q.DailyTokensPerRepository, repo.DailyTokens, requested, callerID)
		}
	}

	if caller != nil && q.MonthlyTokensPerCaller > 0 && caller.MonthlyTokens+requested > q.MonthlyTokensPerCaller {
		return g.exceeded(QuotaMonthlyUser, q.MonthlyTokensPerCaller, caller.MonthlyTokens, requested, callerID)
	}

	if orgID != "" && q.MonthlyTokensPerOrg > 0 {
		org := g.load(ctx, ScopeOrg, orgID, now)
		if org != nil && org.MonthlyTokens+requested > q.MonthlyTokensPerOrg {
			return g.exceeded(QuotaMonthlyOrg, q.MonthlyTokensPerOrg, org.MonthlyTokens, requested, callerID)
		}
	}

	return nil
}

func (g *UsageGuard) load(ctx context.Context, scope UsageScope, id string, now time.Time) *UsageCounterState {
	state, err := g.repo.Load(ctx, scope, id, now)
	if err != nil {
		// Counter store failure: log warning and allow request (graceful degradation)
		g.logger.Warnw("msg", "usage counter read failed, quota check skipped",
			"scope", string(scope),
			"id", id,
			"error", err)
		return nil
	}
	return state
}

func (g *UsageGuard) exceeded(quotaType string, limit, current, requested int64, callerID string) error {
	g.logger.Warnw("msg", "quota exceeded",
		"quota_type", quotaType,
		"caller_id", callerID,
		"current", current,
		"requested", requested,
		"limit", limit)
	return &QuotaExceededError{
		QuotaType: quotaType,
		Limit:     limit,
		Current:   current,
		Requested: requested,
	}
}

// RecordUsage charges a completed call to the caller, repository and org
// counters and hands the record to the sink. It never fails: counter store
// errors are logged and swallowed.
func (g *UsageGuard) RecordUsage(ctx context.Context, in UsageInput) *UsageRecord {
	now := g.now()

	requestID := in.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	kind := in.UsageKind
	if kind == "" {
		kind = UsageKindGeneration
	}

	record := &UsageRecord{
		CallerID:       in.CallerID,
		RepositoryID:   in.RepositoryID,
		OrgID:          in.OrgID,
		UsageKind:      kind,
		TokensConsumed: in.TokensUsed,
		ModelName:      in.ModelName,
		Timestamp:      now,
		RequestID:      requestID,
		EstimatedCost:  float64(in.TokensUsed) / 1000 * CostPer1KTokens(in.ModelName),
	}

	g.add(ctx, ScopeCaller, in.CallerID, in.TokensUsed, now)
	if in.RepositoryID != "" {
		g.add(ctx, ScopeRepository, in.RepositoryID, in.TokensUsed, now)
	}
	if in.OrgID != "" {
		g.add(ctx, ScopeOrg, in.OrgID, in.TokensUsed, now)
	}

	if g.sink != nil {
		g.sink.Save(ctx, record)
	}

	g.logger.Infow("msg", "usage recorded",
		"request_id", record.RequestID,
		"caller_id", record.CallerID,
		"repository_id", record.RepositoryID,
		"model", record.ModelName,
		"tokens", record.TokensConsumed,
		"estimated_cost", record.EstimatedCost)

	return record
}

func (g *UsageGuard) add(ctx context.Context, scope UsageScope, id string, tokens int64, now time.Time) {
	if err := g.repo.Add(ctx, scope, id, tokens, now); err != nil {
		g.logger.Warnw("msg", "usage counter update failed",
			"scope", string(scope),
			"id", id,
			"tokens", tokens,
			"error", err)
	}
}

// UsageStats returns the counter state of (scope, id).
func (g *UsageGuard) UsageStats(ctx context.Context, scope UsageScope, id string) (*UsageCounterState, error) {
	return g.repo.Load(ctx, scope, id, g.now())
}

// EstimateTokens estimates prose tokens with the default ratio.
func (g *UsageGuard) EstimateTokens(text string) int {
	return tokens.EstimateTokens(text)
}

// SelectModelTier returns the default model for free callers, and the
// capable model for paid callers only when complexity exceeds the upgrade
// threshold.
func (g *UsageGuard) SelectModelTier(complexity float64, tier string) string {
	if IsPaidTier(tier) && complexity > g.cfg.UpgradeThreshold {
		return g.cfg.CapableModel
	}
	return g.cfg.DefaultModel
}
