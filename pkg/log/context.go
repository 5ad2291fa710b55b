package log

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// contextKey 是用于存储 RequestContext 的私有 key 类型
type contextKey string

const requestContextKey contextKey = "aiguard_request_context"

// RequestContext 存储请求追踪信息
// 通过 Context 传递，实现跨函数、跨模块的请求追踪
type RequestContext struct {
	RequestID    string    // 唯一请求 ID (UUID)
	CallerID     string    // 调用方 ID
	Tier         string    // 订阅等级 (free/pro/enterprise)
	RepositoryID string    // 仓库 ID（可选）
	StartTime    time.Time // 请求开始时间
}

// GenerateRequestID 生成请求 ID
func GenerateRequestID() string {
	return uuid.NewString()
}

// WithRequestContext 将 RequestContext 注入到 Context 中
// 通常在中间件中调用，为整个请求生命周期提供追踪信息
func WithRequestContext(ctx context.Context, requestID, callerID, tier, repositoryID string) context.Context {
	reqCtx := &RequestContext{
		RequestID:    requestID,
		CallerID:     callerID,
		Tier:         tier,
		RepositoryID: repositoryID,
		StartTime:    time.Now(),
	}
	return context.WithValue(ctx, requestContextKey, reqCtx)
}

// GetRequestContext 从 Context 中提取 RequestContext
// 如果不存在，返回一个默认的空 RequestContext
func GetRequestContext(ctx context.Context) *RequestContext {
	if ctx != nil {
		if reqCtx, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
			return reqCtx
		}
	}
	// 返回默认值，避免 nil 检查
	return &RequestContext{RequestID: "unknown"}
}

// GetRequestID 从 Context 中提取 Request ID
func GetRequestID(ctx context.Context) string {
	return GetRequestContext(ctx).RequestID
}

// GetCallerID 从 Context 中提取调用方 ID
func GetCallerID(ctx context.Context) string {
	return GetRequestContext(ctx).CallerID
}

// GetTier 从 Context 中提取订阅等级
func GetTier(ctx context.Context) string {
	return GetRequestContext(ctx).Tier
}

// GetElapsedTime 获取请求已执行时间（毫秒）
func GetElapsedTime(ctx context.Context) int64 {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(reqCtx.StartTime).Milliseconds()
}
