package server

import (
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"

	"github.com/adityat54544/AI-SAAS-1/internal/conf"
	"github.com/adityat54544/AI-SAAS-1/internal/server/middleware"
	"github.com/adityat54544/AI-SAAS-1/internal/service"
	pkglog "github.com/adityat54544/AI-SAAS-1/pkg/log"
)

// NewHTTPServer new an HTTP server.
func NewHTTPServer(c *conf.Server, aiService *service.AIService, logger log.Logger) *http.Server {
	logHelper := pkglog.NewLogHelper(logger)

	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			middleware.Caller(),           // 调用方识别：X-Caller-ID / X-Caller-Tier / X-Request-ID
			middleware.Logging(logHelper), // 请求日志中间件：记录请求方法、路径、耗时
		),
	}
	if c != nil && c.HTTP != nil {
		if c.HTTP.Network != "" {
			opts = append(opts, http.Network(c.HTTP.Network))
		}
		if c.HTTP.Addr != "" {
			opts = append(opts, http.Address(c.HTTP.Addr))
		}
		if c.HTTP.Timeout != nil {
			opts = append(opts, http.Timeout(c.HTTP.Timeout.AsDuration()))
		}
	}
	srv := http.NewServer(opts...)

	service.RegisterAIServiceHTTPServer(srv, aiService)

	return srv
}
