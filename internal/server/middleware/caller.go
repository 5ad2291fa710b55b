// Package middleware provides HTTP middleware for caller identification and request logging.
package middleware

import (
	"context"
	"strings"

	"github.com/go-kratos/kratos/v2/middleware"
	"github.com/go-kratos/kratos/v2/transport"
	"github.com/go-kratos/kratos/v2/transport/http"

	pkglog "github.com/adityat54544/AI-SAAS-1/pkg/log"
)

// Caller headers.
const (
	HeaderRequestID    = "X-Request-ID"
	HeaderCallerID     = "X-Caller-ID"
	HeaderCallerTier   = "X-Caller-Tier"
	HeaderRepositoryID = "X-Repository-ID"
)

// Caller 返回一个调用方识别中间件
// 从请求头提取 Request ID、调用方 ID、套餐等级和仓库 ID，注入 Request Context
// 缺失的 Request ID 会自动生成，并通过响应头回传
func Caller() middleware.Middleware {
	return func(handler middleware.Handler) middleware.Handler {
		return func(ctx context.Context, req interface{}) (interface{}, error) {
			var requestID, callerID, tier, repositoryID string

			if tr, ok := transport.FromServerContext(ctx); ok {
				if ht, ok := tr.(http.Transporter); ok {
					h := ht.Request().Header
					requestID = strings.TrimSpace(h.Get(HeaderRequestID))
					callerID = strings.TrimSpace(h.Get(HeaderCallerID))
					tier = strings.ToLower(strings.TrimSpace(h.Get(HeaderCallerTier)))
					repositoryID = strings.TrimSpace(h.Get(HeaderRepositoryID))
				} else {
					requestID = tr.RequestHeader().Get(HeaderRequestID)
				}

				if requestID == "" {
					requestID = pkglog.GenerateRequestID()
				}
				tr.ReplyHeader().Set(HeaderRequestID, requestID)
			}

			if requestID == "" {
				requestID = pkglog.GenerateRequestID()
			}

			ctx = pkglog.WithRequestContext(ctx, requestID, callerID, tier, repositoryID)
			return handler(ctx, req)
		}
	}
}
