package service

import (
	"context"
	"encoding/json"
	"errors"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/adityat54544/AI-SAAS-1/internal/biz"
	"github.com/adityat54544/AI-SAAS-1/internal/data"
)

type stubDeps map[string]string

func (s stubDeps) Ping(context.Context) map[string]string { return s }

type serviceFixture struct {
	srv      *http.Server
	provider *data.FakeProvider
	uc       *biz.GatewayUsecase
}

func newServiceFixture(t *testing.T, quota biz.UsageQuota) *serviceFixture {
	t.Helper()
	logger := log.NewFilter(log.NewStdLogger(os.Stdout), log.FilterLevel(log.LevelError))

	provider := data.NewFakeProvider(logger)
	breaker := biz.NewCircuitBreaker(biz.CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute}, logger)
	policy := biz.RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, ExponentialBase: 2}
	invoker := biz.NewInvoker(breaker, policy, logger)
	guard := biz.NewUsageGuard(biz.UsageGuardConfig{Quota: quota}, data.NewMemoryCounterRepo(), nil, logger)
	router := biz.NewModelRouter(biz.DefaultModelRouterConfig(), biz.DefaultModelProfiles(), logger)
	uc := biz.NewGatewayUsecase(router, guard, invoker, provider, nil, nil, biz.GatewayConfig{Timeout: time.Second}, logger)

	srv := http.NewServer()
	RegisterAIServiceHTTPServer(srv, NewAIService(uc, stubDeps{"redis": "ok"}, logger))
	return &serviceFixture{srv: srv, provider: provider, uc: uc}
}

func (f *serviceFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func TestGenerate_Success(t *testing.T) {
	f := newServiceFixture(t, biz.DefaultUsageQuota())

	rec := f.do(t, nethttp.MethodPost, "/v1/generate",
		`{"caller_id":"u1","repository_id":"r1","task_kind":"analysis","content":"Analyze this repository"}`)

	require.Equal(t, nethttp.StatusOK, rec.Code, rec.Body.String())
	body := rec.Body.String()
	assert.Equal(t, "gemini-1.5-flash", gjson.Get(body, "model_used").String())
	assert.False(t, gjson.Get(body, "fallback_used").Bool())
	assert.Equal(t, int64(85), gjson.Get(body, "structured.overall_score").Int())
	assert.NotEmpty(t, gjson.Get(body, "request_id").String())

	rec = f.do(t, nethttp.MethodGet, "/v1/usage/user/u1", "")
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, gjson.Get(body, "tokens_used").Int(), gjson.Get(rec.Body.String(), "usage.daily_tokens").Int())
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "usage.daily_requests").Int())
	assert.Equal(t, int64(100000), gjson.Get(rec.Body.String(), "quota.daily_tokens_per_caller").Int())
}

func TestGenerate_QuotaExceeded(t *testing.T) {
	quota := biz.DefaultUsageQuota()
	quota.MaxTokensPerTask = 10
	f := newServiceFixture(t, quota)

	rec := f.do(t, nethttp.MethodPost, "/v1/generate", `{"caller_id":"u1","content":"hello","max_tokens":100}`)

	assert.Equal(t, 429, rec.Code)
	assert.Equal(t, "QUOTA_EXCEEDED_PER_TASK", gjson.Get(rec.Body.String(), "reason").String())
	assert.Equal(t, "10", gjson.Get(rec.Body.String(), "metadata.limit").String())
	assert.Equal(t, 0, f.provider.Calls())
}

func TestGenerate_InvalidRequest(t *testing.T) {
	f := newServiceFixture(t, biz.DefaultUsageQuota())

	rec := f.do(t, nethttp.MethodPost, "/v1/generate", `{"caller_id":"u1"}`)

	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
	assert.Equal(t, ReasonInvalidRequest, gjson.Get(rec.Body.String(), "reason").String())
}

func TestGenerate_UpstreamUnavailable(t *testing.T) {
	f := newServiceFixture(t, biz.DefaultUsageQuota())
	f.provider.FailNext(errors.New("connection reset"))

	rec := f.do(t, nethttp.MethodPost, "/v1/generate", `{"caller_id":"u1","content":"hello"}`)

	assert.Equal(t, nethttp.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, ReasonUpstreamUnavailable, gjson.Get(rec.Body.String(), "reason").String())
}

func TestGenerate_FallbackWhenCircuitOpen(t *testing.T) {
	f := newServiceFixture(t, biz.DefaultUsageQuota())
	f.uc.Invoker().Breaker().RecordFailure()
	f.uc.Invoker().Breaker().RecordFailure()

	rec := f.do(t, nethttp.MethodPost, "/v1/generate", `{"caller_id":"u1","content":"hello"}`)

	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.True(t, gjson.Get(rec.Body.String(), "fallback_used").Bool())
	assert.Equal(t, biz.FallbackContent, gjson.Get(rec.Body.String(), "content").String())

	rec = f.do(t, nethttp.MethodGet, "/v1/health", "")
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "degraded", gjson.Get(rec.Body.String(), "status").String())
	assert.Equal(t, "open", gjson.Get(rec.Body.String(), "metrics.circuit_breaker.state").String())
}

func TestHealth(t *testing.T) {
	f := newServiceFixture(t, biz.DefaultUsageQuota())

	rec := f.do(t, nethttp.MethodGet, "/v1/health", "")

	require.Equal(t, nethttp.StatusOK, rec.Code)
	var reply map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.Equal(t, "ok", reply["status"])
	assert.Equal(t, "fake", reply["provider"])
	assert.Equal(t, map[string]any{"redis": "ok"}, reply["dependencies"])
}

func TestUsage_InvalidScope(t *testing.T) {
	f := newServiceFixture(t, biz.DefaultUsageQuota())

	rec := f.do(t, nethttp.MethodGet, "/v1/usage/team/t1", "")

	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
}

func TestRoute(t *testing.T) {
	f := newServiceFixture(t, biz.DefaultUsageQuota())

	rec := f.do(t, nethttp.MethodPost, "/v1/route", `{"task_kind":"chat","content":"hi there","tier":"free","output_tokens":1000}`)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, "gemini-1.5-flash", gjson.Get(body, "decision.model").String())
	assert.Equal(t, "free_tier", gjson.Get(body, "decision.reason").String())
	assert.False(t, gjson.Get(body, "should_split").Bool())
	assert.Greater(t, gjson.Get(body, "estimated_cost").Float(), 0.0)

	rec = f.do(t, nethttp.MethodPost, "/v1/route",
		`{"task_kind":"analysis","tier":"pro","files":{"main.go":"package main","README.md":"# demo"}}`)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, int64(2), gjson.Get(rec.Body.String(), "repository.file_count").Int())

	rec = f.do(t, nethttp.MethodPost, "/v1/route", `{"task_kind":"chat"}`)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
}
