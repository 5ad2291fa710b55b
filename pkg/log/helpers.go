package log

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"
)

// SlowRequestThresholdMs 慢请求阈值（毫秒）
const SlowRequestThresholdMs = 1000

// LogHelper 扩展 Kratos log.Helper，提供便捷的日志方法
// 通过在日志调用时自动添加 "type" 字段，触发 EmojiConsoleEncoder 的表情符号映射
type LogHelper struct {
	*log.Helper
}

// NewLogHelper 创建增强的日志辅助器
func NewLogHelper(logger log.Logger) *LogHelper {
	return &LogHelper{
		Helper: log.NewHelper(logger),
	}
}

// typed 拼接 msg、调用方字段和 type 字段
func typed(logType, msg string, kvs []interface{}) []interface{} {
	allKvs := make([]interface{}, 0, len(kvs)+4)
	allKvs = append(allKvs, "msg", msg)
	allKvs = append(allKvs, kvs...)
	return append(allKvs, "type", logType)
}

// API 记录 API 相关日志（表情符号: 🔗）
func (h *LogHelper) API(msg string, kvs ...interface{}) {
	h.Infow(typed("api", msg, kvs)...)
}

// Success 记录成功操作日志（表情符号: ✅）
func (h *LogHelper) Success(msg string, kvs ...interface{}) {
	h.Infow(typed("success", msg, kvs)...)
}

// Database 记录数据库操作日志（表情符号: 💾）
func (h *LogHelper) Database(msg string, kvs ...interface{}) {
	h.Debugw(typed("database", msg, kvs)...)
}

// Redis 记录 Redis 操作日志（表情符号: 📦）
func (h *LogHelper) Redis(msg string, kvs ...interface{}) {
	h.Debugw(typed("redis", msg, kvs)...)
}

// Scheduler 记录调度器相关日志（表情符号: 🎯）
func (h *LogHelper) Scheduler(msg string, kvs ...interface{}) {
	h.Infow(typed("scheduler", msg, kvs)...)
}

// Startup 记录启动相关日志（表情符号: 🚀）
func (h *LogHelper) Startup(msg string, kvs ...interface{}) {
	h.Infow(typed("startup", msg, kvs)...)
}

// Audit 记录审计日志（表情符号: 📋）
func (h *LogHelper) Audit(msg string, kvs ...interface{}) {
	h.Infow(typed("audit", msg, kvs)...)
}

// Circuit 记录熔断器状态变化（表情符号: 🔌）
// 熔断打开属于告警级别
func (h *LogHelper) Circuit(msg string, kvs ...interface{}) {
	h.Warnw(typed("circuit", msg, kvs)...)
}

// Retry 记录重试日志（表情符号: 🔁）
func (h *LogHelper) Retry(msg string, kvs ...interface{}) {
	h.Infow(typed("retry", msg, kvs)...)
}

// Quota 记录配额拒绝日志（表情符号: 🚦）
func (h *LogHelper) Quota(msg string, kvs ...interface{}) {
	h.Warnw(typed("quota", msg, kvs)...)
}

// Usage 记录 Token 使用日志（表情符号: 📊）
func (h *LogHelper) Usage(msg string, kvs ...interface{}) {
	h.Infow(typed("usage", msg, kvs)...)
}

// Routing 记录模型路由决策（表情符号: 🧭）
func (h *LogHelper) Routing(msg string, kvs ...interface{}) {
	h.Debugw(typed("routing", msg, kvs)...)
}

// Request 记录 HTTP 请求日志（表情符号: 根据状态码）
func (h *LogHelper) Request(method, url string, status int, durationMs int64, kvs ...interface{}) {
	msg := fmt.Sprintf("%s %s - %d (%dms)", method, url, status, durationMs)
	allKvs := typed("request", msg, kvs)
	allKvs = append(allKvs,
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(allKvs...)
}

// ========== Context-Aware 日志方法 ==========
// 以下方法自动从 Context 提取追踪信息（Request ID, Caller ID 等）

// RequestWithContext 记录带 Context 的 HTTP 请求日志
// 自动从 Context 提取 Request ID 并检测慢请求
func (h *LogHelper) RequestWithContext(ctx context.Context, method, url string, status int, durationMs int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("%s %s - %d (%dms) | RequestID: %s", method, url, status, durationMs, reqCtx.RequestID)
	allKvs := typed("request", msg, kvs)
	allKvs = append(allKvs,
		"request_id", reqCtx.RequestID,
		"caller_id", reqCtx.CallerID,
		"method", method,
		"url", url,
		"status", status,
		"duration_ms", durationMs,
	)
	h.Infow(allKvs...)

	if durationMs > SlowRequestThresholdMs {
		h.SlowRequest(ctx, method, url, durationMs, SlowRequestThresholdMs)
	}
}

// SlowRequest 记录慢请求警告（表情符号: 🐌）
func (h *LogHelper) SlowRequest(ctx context.Context, method, url string, duration, threshold int64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("[%s] Slow request detected | %s %s | %dms (threshold: %dms)",
		reqCtx.RequestID, method, url, duration, threshold)
	allKvs := typed("slow_request", msg, kvs)
	allKvs = append(allKvs,
		"request_id", reqCtx.RequestID,
		"caller_id", reqCtx.CallerID,
		"duration_ms", duration,
		"threshold_ms", threshold,
	)
	h.Warnw(allKvs...)
}

// CacheStats 记录缓存统计信息（表情符号: 🧹）
func (h *LogHelper) CacheStats(ctx context.Context, cacheName string, size, maxSize, hits, misses, evictions int64, kvs ...interface{}) {
	var hitRate float64
	total := hits + misses
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	msg := fmt.Sprintf("Cache stats - %s | Size: %d/%d, Hit Rate: %.2f%%, Evictions: %d",
		cacheName, size, maxSize, hitRate, evictions)
	allKvs := typed("cache_stats", msg, kvs)
	allKvs = append(allKvs,
		"cache_name", cacheName,
		"size", size,
		"max_size", maxSize,
		"hits", hits,
		"misses", misses,
		"evictions", evictions,
		"hit_rate", fmt.Sprintf("%.2f%%", hitRate),
		"total_requests", total,
	)
	h.Infow(allKvs...)
}

// UpstreamUsage 记录一次上游调用的 Token 使用（表情符号: 📊）
func (h *LogHelper) UpstreamUsage(ctx context.Context, model string, tokens int64, latencyMs float64, kvs ...interface{}) {
	reqCtx := GetRequestContext(ctx)

	msg := fmt.Sprintf("[%s] Upstream call completed - Model: %s | Tokens: %d | %.0fms",
		reqCtx.RequestID, model, tokens, latencyMs)
	allKvs := typed("usage", msg, kvs)
	allKvs = append(allKvs,
		"request_id", reqCtx.RequestID,
		"caller_id", reqCtx.CallerID,
		"tier", reqCtx.Tier,
		"model", model,
		"tokens", tokens,
		"latency_ms", latencyMs,
	)
	h.Infow(allKvs...)
}
