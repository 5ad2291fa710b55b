// Package biz contains business logic layer implementations.
// This layer holds the resilience and quota rules and the interfaces the
// data layer implements.
package biz

import (
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"

	"github.com/adityat54544/AI-SAAS-1/internal/conf"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewCircuitBreakerFromConfig,
	NewRetryPolicyFromConfig,
	NewUsageGuardConfig,
	NewModelRouterConfig,
	NewGatewayConfig,
	DefaultModelProfiles,
	NewInvoker,
	NewUsageGuard,
	NewModelRouter,
	NewGatewayUsecase,
)

// NewCircuitBreakerFromConfig creates the breaker protecting the upstream.
func NewCircuitBreakerFromConfig(c *conf.AI, logger log.Logger) *CircuitBreaker {
	cfg := CircuitBreakerConfig{}
	if cb := c.CircuitBreaker; cb != nil {
		cfg.FailureThreshold = cb.FailureThreshold
		cfg.RecoveryTimeout = cb.RecoveryTimeout.AsDuration()
		cfg.HalfOpenMaxProbes = cb.HalfOpenMaxProbes
	}
	return NewCircuitBreaker(cfg, logger)
}

// NewRetryPolicyFromConfig builds the retry policy.
func NewRetryPolicyFromConfig(c *conf.AI) RetryPolicy {
	p := DefaultRetryPolicy()
	if r := c.Retry; r != nil {
		p.MaxRetries = r.MaxRetries
		if d := r.BaseDelay.AsDuration(); d > 0 {
			p.BaseDelay = d
		}
		if d := r.MaxDelay.AsDuration(); d > 0 {
			p.MaxDelay = d
		}
		if r.ExponentialBase > 0 {
			p.ExponentialBase = r.ExponentialBase
		}
		p.Jitter = r.Jitter
	}
	return p
}

// NewUsageGuardConfig builds the quota configuration.
func NewUsageGuardConfig(c *conf.AI) UsageGuardConfig {
	cfg := UsageGuardConfig{Quota: DefaultUsageQuota()}
	if q := c.Quota; q != nil {
		cfg.Quota = UsageQuota{
			MaxTokensPerTask:         q.MaxTokensPerTask,
			DailyTokensPerCaller:     q.DailyTokensPerCaller,
			DailyTokensPerRepository: q.DailyTokensPerRepository,
			MonthlyTokensPerCaller:   q.MonthlyTokensPerCaller,
			MonthlyTokensPerOrg:      q.MonthlyTokensPerOrg,
		}
	}
	if r := c.Router; r != nil {
		cfg.DefaultModel = r.DefaultModel
		cfg.CapableModel = r.CapableModel
		cfg.UpgradeThreshold = r.GuardUpgradeThreshold
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModelRouterConfig().DefaultModel
	}
	if cfg.CapableModel == "" {
		cfg.CapableModel = DefaultModelRouterConfig().CapableModel
	}
	return cfg
}

// NewModelRouterConfig builds the router configuration.
func NewModelRouterConfig(c *conf.AI) ModelRouterConfig {
	r := c.Router
	if r == nil {
		return DefaultModelRouterConfig()
	}
	return ModelRouterConfig{
		DefaultModel:           r.DefaultModel,
		MidModel:               r.MidModel,
		CapableModel:           r.CapableModel,
		SimpleThreshold:        r.SimpleThreshold,
		ComplexThreshold:       r.ComplexThreshold,
		LargeRequestTokens:     r.LargeRequestTokens,
		SplitContextPercentage: r.SplitContextPercentage,
	}
}

// NewGatewayConfig builds the gateway configuration.
func NewGatewayConfig(c *conf.AI) GatewayConfig {
	cfg := GatewayConfig{}
	if p := c.Provider; p != nil {
		cfg.Timeout = p.Timeout.AsDuration()
	}
	return cfg
}
