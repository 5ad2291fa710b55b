// Package data provides data access layer implementations.
// It handles the Redis counter store, the MySQL usage ledger, the response
// cache and the upstream providers.
package data

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/adityat54544/AI-SAAS-1/internal/biz"
	"github.com/adityat54544/AI-SAAS-1/internal/conf"
)

// Counter store kinds.
const (
	CounterStoreMemory = "memory"
	CounterStoreRedis  = "redis"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	wire.Bind(new(biz.DependencyChecker), new(*Data)),
	NewRedisClient,
	NewMySQLClient,
	NewUsageCounterRepo,
	NewUsageRecordSink,
	NewCircuitAuditLogger,
	NewResponseCache,
	wire.Bind(new(biz.ResponseCache), new(*ResponseCache)),
	NewUpstreamProvider,
)

// Data contains all data layer dependencies.
type Data struct {
	rdb   *redis.Client
	db    *gorm.DB
	cache *ResponseCache
}

// NewData creates a new Data instance with all data layer dependencies.
// Missing Redis or MySQL does not prevent application startup (graceful degradation).
func NewData(_ *conf.Data, logger log.Logger, rdb *redis.Client, db *gorm.DB, cache *ResponseCache) (*Data, func(), error) {
	helper := log.NewHelper(logger)

	if rdb == nil {
		helper.Warnw("msg", "Redis client is nil, counters and shared cache tier are process-local")
	}
	if db == nil {
		helper.Warnw("msg", "database is nil, usage records are only logged")
	}

	d := &Data{rdb: rdb, db: db, cache: cache}

	cleanup := func() {
		helper.Info("closing the data resources")
	}

	return d, cleanup, nil
}

var _ biz.DependencyChecker = (*Data)(nil)

// Cache returns the response cache.
func (d *Data) Cache() *ResponseCache { return d.cache }

// Ping checks every configured dependency. Unconfigured ones report
// "disabled".
func (d *Data) Ping(ctx context.Context) map[string]string {
	status := map[string]string{"redis": "disabled", "database": "disabled"}

	if d.rdb != nil {
		status["redis"] = "ok"
		if err := d.rdb.Ping(ctx).Err(); err != nil {
			status["redis"] = err.Error()
		}
	}
	if d.db != nil {
		status["database"] = "ok"
		if sqlDB, err := d.db.DB(); err != nil {
			status["database"] = err.Error()
		} else if err := sqlDB.PingContext(ctx); err != nil {
			status["database"] = err.Error()
		}
	}
	return status
}

// NewUsageCounterRepo selects the counter backend. "redis" without a Redis
// client falls back to memory.
func NewUsageCounterRepo(c *conf.AI, rdb *redis.Client, logger log.Logger) biz.UsageCounterRepo {
	helper := log.NewHelper(logger)

	kind := CounterStoreMemory
	if c != nil && c.CounterStore != "" {
		kind = strings.ToLower(c.CounterStore)
	}

	if kind == CounterStoreRedis {
		if rdb != nil {
			helper.Infow("msg", "usage counters stored in Redis")
			return NewStoreCounterRepo(NewRedisCounterStore(rdb))
		}
		helper.Warnw("msg", "counter store redis requested but Redis is not configured, using memory")
	}
	return NewMemoryCounterRepo()
}

// NewUsageRecordSink returns the MySQL ledger when a database is
// configured and a log-only sink otherwise.
func NewUsageRecordSink(db *gorm.DB, logger log.Logger) (biz.UsageRecordSink, func()) {
	if db == nil {
		return NewLogUsageSink(logger), func() {}
	}
	ledger := NewUsageLedger(db, logger)
	return ledger, ledger.Close
}

// NewCircuitAuditLogger returns the breaker audit trail.
func NewCircuitAuditLogger(db *gorm.DB, logger log.Logger) (biz.AuditLogger, func()) {
	al := NewAuditLogger(db, logger)
	return al, al.Close
}

// NewUpstreamProvider selects the upstream by configuration. An empty kind
// picks the fake provider when no real API key is set.
func NewUpstreamProvider(c *conf.AI, logger log.Logger) (biz.UpstreamProvider, error) {
	var pc *conf.AI_Provider
	if c != nil {
		pc = c.Provider
	}

	kind := ""
	if pc != nil {
		kind = strings.ToLower(pc.Kind)
	}
	if kind == "" {
		kind = ProviderKindHTTP
		if pc == nil || pc.APIKey == "" || strings.HasPrefix(pc.APIKey, "test-") {
			kind = ProviderKindFake
		}
	}

	switch kind {
	case ProviderKindFake:
		log.NewHelper(logger).Warnw("msg", "using fake upstream provider")
		return NewFakeProvider(logger), nil
	case ProviderKindHTTP:
		return NewHTTPProvider(pc, logger)
	default:
		return nil, fmt.Errorf("unsupported provider kind %q", kind)
	}
}
