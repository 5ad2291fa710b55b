package server

import (
	"context"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/adityat54544/AI-SAAS-1/internal/biz"
	"github.com/adityat54544/AI-SAAS-1/internal/conf"
	"github.com/adityat54544/AI-SAAS-1/internal/data"
	"github.com/adityat54544/AI-SAAS-1/internal/service"
)

func newTestGateway(t *testing.T) (*biz.GatewayUsecase, log.Logger) {
	t.Helper()
	logger := log.NewFilter(log.NewStdLogger(os.Stdout), log.FilterLevel(log.LevelError))

	breaker := biz.NewCircuitBreaker(biz.CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Minute}, logger)
	invoker := biz.NewInvoker(breaker, biz.RetryPolicy{BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, ExponentialBase: 2}, logger)
	guard := biz.NewUsageGuard(biz.UsageGuardConfig{Quota: biz.DefaultUsageQuota()}, data.NewMemoryCounterRepo(), nil, logger)
	router := biz.NewModelRouter(biz.DefaultModelRouterConfig(), biz.DefaultModelProfiles(), logger)
	uc := biz.NewGatewayUsecase(router, guard, invoker, data.NewFakeProvider(logger), nil, nil, biz.GatewayConfig{}, logger)
	return uc, logger
}

func TestHealthServer_FollowsCircuit(t *testing.T) {
	uc, logger := newTestGateway(t)
	hs := NewHealthServer(uc, logger)
	ctx := context.Background()

	check := func() grpc_health_v1.HealthCheckResponse_ServingStatus {
		resp, err := hs.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: HealthServiceName})
		require.NoError(t, err)
		return resp.Status
	}

	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, check())

	uc.Invoker().Breaker().RecordFailure()
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, check())

	uc.Invoker().Breaker().Reset()
	assert.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, check())
}

func TestNewGRPCServer(t *testing.T) {
	uc, logger := newTestGateway(t)
	srv := NewGRPCServer(&conf.Server{GRPC: &conf.Server_GRPC{Addr: "127.0.0.1:0", Timeout: durationpb.New(time.Second)}},
		NewHealthServer(uc, logger), logger)
	require.NotNil(t, srv)
	assert.Contains(t, srv.GetServiceInfo(), "grpc.health.v1.Health")
}

func TestHTTPServer_CallerHeaders(t *testing.T) {
	uc, logger := newTestGateway(t)
	srv := NewHTTPServer(&conf.Server{HTTP: &conf.Server_HTTP{Addr: "127.0.0.1:0", Timeout: durationpb.New(5 * time.Second)}},
		service.NewAIService(uc, nil, logger), logger)

	req := httptest.NewRequest(nethttp.MethodPost, "/v1/generate", strings.NewReader(`{"content":"hello"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Caller-ID", "user-9")
	req.Header.Set("X-Request-ID", "req-9")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "req-9", gjson.Get(rec.Body.String(), "request_id").String())
	assert.Equal(t, "req-9", rec.Header().Get("X-Request-ID"))

	state, err := uc.Guard().UsageStats(context.Background(), biz.ScopeCaller, "user-9")
	require.NoError(t, err)
	assert.Equal(t, int64(1), state.DailyRequests)
}
