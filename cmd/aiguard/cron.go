package main

import (
	"context"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/robfig/cron/v3"

	"github.com/adityat54544/AI-SAAS-1/internal/biz"
	"github.com/adityat54544/AI-SAAS-1/internal/data"
	pkglog "github.com/adityat54544/AI-SAAS-1/pkg/log"
	"github.com/adityat54544/AI-SAAS-1/pkg/workpool"
)

// Report schedules (秒 分 时 日 月 周).
const (
	// 每分钟整点：熔断器快照和调用指标
	healthReportSpec = "0 * * * * *"
	// 每小时整点：响应缓存统计
	cacheReportSpec = "0 0 * * * *"
)

// poolReporter is implemented by providers with a bounded worker pool.
type poolReporter interface {
	PoolStats() workpool.Stats
}

// reportScheduler runs the periodic report jobs. It implements
// transport.Server so the Kratos app starts and stops it with the servers.
type reportScheduler struct {
	cron     *cron.Cron
	uc       *biz.GatewayUsecase
	provider biz.UpstreamProvider
	cache    *data.ResponseCache
	logger   *pkglog.LogHelper
}

// newReportScheduler 创建定时报告任务
func newReportScheduler(uc *biz.GatewayUsecase, provider biz.UpstreamProvider, cache *data.ResponseCache, logger log.Logger) (*reportScheduler, error) {
	s := &reportScheduler{
		cron:     cron.New(cron.WithSeconds()),
		uc:       uc,
		provider: provider,
		cache:    cache,
		logger:   pkglog.NewLogHelper(logger),
	}

	if _, err := s.cron.AddFunc(healthReportSpec, s.reportHealth); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(cacheReportSpec, s.reportCache); err != nil {
		return nil, err
	}
	return s, nil
}

// Start implements transport.Server.
func (s *reportScheduler) Start(context.Context) error {
	s.cron.Start()
	s.logger.Scheduler("report jobs started",
		"health_spec", healthReportSpec,
		"cache_spec", cacheReportSpec)
	return nil
}

// Stop implements transport.Server. It waits for running jobs.
func (s *reportScheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.logger.Scheduler("report jobs stopped")
	return nil
}

// reportHealth 记录熔断器状态和调用指标
func (s *reportScheduler) reportHealth() {
	m := s.uc.Invoker().Metrics()
	kvs := []interface{}{
		"state", m.Circuit.StateName,
		"failure_count", m.Circuit.FailureCount,
		"total_requests", m.TotalRequests,
		"total_errors", m.TotalErrors,
		"error_rate", m.ErrorRate,
		"avg_latency_ms", m.AvgLatencyMs,
	}
	if p, ok := s.provider.(poolReporter); ok {
		stats := p.PoolStats()
		kvs = append(kvs,
			"pool_size", stats.Size,
			"pool_in_flight", stats.InFlight,
			"pool_waiting", stats.Waiting)
	}

	if m.Circuit.State == biz.CircuitClosed {
		s.logger.Scheduler("upstream health report", kvs...)
		return
	}
	s.logger.Circuit("upstream health report, circuit not closed", kvs...)
}

// reportCache 记录响应缓存统计
func (s *reportScheduler) reportCache() {
	if s.cache == nil {
		return
	}
	st := s.cache.Stats()
	s.logger.CacheStats(context.Background(), "response", st.Size, st.MaxSize, st.Hits, st.Misses, st.Evictions)
}
