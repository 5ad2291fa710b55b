package biz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	pkglog "github.com/adityat54544/AI-SAAS-1/pkg/log"
)

// MockUpstreamProvider is a mock implementation of UpstreamProvider for testing.
type MockUpstreamProvider struct {
	mock.Mock
}

func (m *MockUpstreamProvider) Name() string { return "mock" }

func (m *MockUpstreamProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*GenerateResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// countingRepo keeps counters in a map without window resets.
type countingRepo struct {
	mu     sync.Mutex
	tokens map[string]int64
}

func newCountingRepo() *countingRepo {
	return &countingRepo{tokens: make(map[string]int64)}
}

func (r *countingRepo) Load(_ context.Context, scope UsageScope, id string, _ time.Time) (*UsageCounterState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.tokens[string(scope)+":"+id]
	return &UsageCounterState{Scope: scope, ID: id, DailyTokens: n, MonthlyTokens: n}, nil
}

func (r *countingRepo) Add(_ context.Context, scope UsageScope, id string, tokens int64, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[string(scope)+":"+id] += tokens
	return nil
}

func (r *countingRepo) get(scope UsageScope, id string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens[string(scope)+":"+id]
}

// mapCache is an unbounded ResponseCache.
type mapCache struct {
	mu    sync.Mutex
	items map[string]*CachedResponse
}

func (c *mapCache) Get(_ context.Context, key string) (*CachedResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *mapCache) Set(_ context.Context, key string, resp *CachedResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = resp
}

type gatewayFixture struct {
	uc       *GatewayUsecase
	provider *MockUpstreamProvider
	repo     *countingRepo
	invoker  *Invoker
}

func newGatewayFixture(t *testing.T, threshold, maxRetries int, quota UsageQuota, cache ResponseCache) *gatewayFixture {
	t.Helper()

	logger := testLogger()
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: threshold, RecoveryTimeout: time.Minute}, logger)
	inv := NewInvoker(cb, RetryPolicy{MaxRetries: maxRetries, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, ExponentialBase: 2}, logger)
	repo := newCountingRepo()
	guard := NewUsageGuard(UsageGuardConfig{Quota: quota, DefaultModel: "gemini-1.5-flash", CapableModel: "gemini-2.5-pro"}, repo, nil, logger)
	router := NewModelRouter(DefaultModelRouterConfig(), DefaultModelProfiles(), logger)
	provider := new(MockUpstreamProvider)

	uc := NewGatewayUsecase(router, guard, inv, provider, cache, nil, GatewayConfig{Timeout: 50 * time.Millisecond}, logger)
	return &gatewayFixture{uc: uc, provider: provider, repo: repo, invoker: inv}
}

func TestGenerate_Success(t *testing.T) {
	f := newGatewayFixture(t, 5, 2, DefaultUsageQuota(), nil)
	f.provider.On("Generate", mock.Anything, mock.MatchedBy(func(req *GenerateRequest) bool {
		return req.Model == "gemini-1.5-flash" && req.MaxTokens == DefaultMaxTokens && req.Temperature == DefaultTemperature
	})).Return(&GenerateResult{Content: "hello", TokensUsed: 120, FinishReason: "stop"}, nil)

	ctx := pkglog.WithRequestContext(context.Background(), "req-abc", "", "", "")
	resp, err := f.uc.Generate(ctx, GatewayRequest{
		CallerID:     "user-1",
		RepositoryID: "repo-1",
		TaskKind:     TaskChat,
		Content:      "say hello",
		Tier:         TierFree,
	})

	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "gemini-1.5-flash", resp.ModelUsed)
	assert.Equal(t, 120, resp.TokensUsed)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, "req-abc", resp.RequestID)
	assert.False(t, resp.FallbackUsed)
	assert.False(t, resp.FromCache)
	assert.InDelta(t, 0.12*0.00001875, resp.EstimatedCost, 1e-15)
	assert.Nil(t, resp.Structured)

	assert.Equal(t, int64(120), f.repo.get(ScopeCaller, "user-1"))
	assert.Equal(t, int64(120), f.repo.get(ScopeRepository, "repo-1"))
	f.provider.AssertExpectations(t)
}

func TestGenerate_StructuredOutputForCodeTasks(t *testing.T) {
	f := newGatewayFixture(t, 5, 0, DefaultUsageQuota(), nil)
	f.provider.On("Generate", mock.Anything, mock.Anything).
		Return(&GenerateResult{Content: "Result:\n```json\n{\"score\": 8}\n```", TokensUsed: 10, FinishReason: "stop"}, nil)

	resp, err := f.uc.Generate(context.Background(), GatewayRequest{
		CallerID: "user-1",
		TaskKind: TaskAnalysis,
		Content:  "func main() {}",
	})

	require.NoError(t, err)
	assert.Equal(t, "fenced_json", resp.ParseStrategy)
	assert.Equal(t, map[string]any{"score": float64(8)}, resp.Structured)
	assert.NotEmpty(t, resp.RequestID)
}

func TestGenerate_QuotaExceededDoesNotCallUpstream(t *testing.T) {
	quota := DefaultUsageQuota()
	quota.MaxTokensPerTask = 100
	f := newGatewayFixture(t, 5, 0, quota, nil)

	_, err := f.uc.Generate(context.Background(), GatewayRequest{
		CallerID: "user-1",
		Content:  "hello",
	})

	var quotaErr *QuotaExceededError
	require.True(t, errors.As(err, &quotaErr))
	assert.Equal(t, QuotaPerTask, quotaErr.QuotaType)
	f.provider.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestGenerate_DailyQuotaAcrossCalls(t *testing.T) {
	quota := DefaultUsageQuota()
	quota.DailyTokensPerCaller = 5000
	f := newGatewayFixture(t, 5, 0, quota, nil)
	f.provider.On("Generate", mock.Anything, mock.Anything).
		Return(&GenerateResult{Content: "ok", TokensUsed: 1000, FinishReason: "stop"}, nil)

	req := GatewayRequest{CallerID: "user-1", Content: "hello", MaxTokens: 100}
	// the fifth call still fits: 4000 + estimate + 100 <= 5000
	for i := 0; i < 5; i++ {
		_, err := f.uc.Generate(context.Background(), req)
		require.NoError(t, err)
	}

	_, err := f.uc.Generate(context.Background(), req)
	var quotaErr *QuotaExceededError
	require.True(t, errors.As(err, &quotaErr))
	assert.Equal(t, QuotaDailyUser, quotaErr.QuotaType)
	assert.Equal(t, int64(5000), quotaErr.Current)
}

func TestGenerate_RetriesExhausted(t *testing.T) {
	f := newGatewayFixture(t, 10, 2, DefaultUsageQuota(), nil)
	f.provider.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("503 from upstream"))

	_, err := f.uc.Generate(context.Background(), GatewayRequest{CallerID: "user-1", Content: "hello"})

	var clientErr *AIClientError
	require.True(t, errors.As(err, &clientErr))
	assert.False(t, clientErr.Retryable)
	f.provider.AssertNumberOfCalls(t, "Generate", 3)
	assert.Equal(t, int64(0), f.repo.get(ScopeCaller, "user-1"))
}

func TestGenerate_TimeoutsOpenCircuitThenFallback(t *testing.T) {
	f := newGatewayFixture(t, 3, 0, DefaultUsageQuota(), nil)
	f.provider.On("Generate", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		<-args.Get(0).(context.Context).Done()
	}).Return(nil, context.DeadlineExceeded)

	req := GatewayRequest{CallerID: "user-1", Content: "hello"}
	for i := 0; i < 3; i++ {
		_, err := f.uc.Generate(context.Background(), req)
		require.Error(t, err)
	}
	require.Equal(t, CircuitOpen, f.invoker.Breaker().State())

	resp, err := f.uc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.FallbackUsed)
	assert.Equal(t, FallbackContent, resp.Content)
	assert.Equal(t, FinishReasonCircuitOpen, resp.FinishReason)
	assert.Equal(t, 0, resp.TokensUsed)
	f.provider.AssertNumberOfCalls(t, "Generate", 3)
}

func TestGenerate_CacheHit(t *testing.T) {
	cache := &mapCache{items: make(map[string]*CachedResponse)}
	f := newGatewayFixture(t, 5, 0, DefaultUsageQuota(), cache)
	f.provider.On("Generate", mock.Anything, mock.Anything).
		Return(&GenerateResult{Content: "cached answer", TokensUsed: 50, FinishReason: "stop"}, nil).Once()

	req := GatewayRequest{CallerID: "user-1", Content: "what is CI?"}
	first, err := f.uc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := f.uc.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, "cached answer", second.Content)
	assert.NotEqual(t, first.RequestID, second.RequestID)

	// cache hits are not charged
	assert.Equal(t, int64(50), f.repo.get(ScopeCaller, "user-1"))
	f.provider.AssertNumberOfCalls(t, "Generate", 1)
}

func TestGenerate_InvalidRequest(t *testing.T) {
	f := newGatewayFixture(t, 5, 0, DefaultUsageQuota(), nil)

	tests := []GatewayRequest{
		{Content: "hello"},
		{CallerID: "u"},
		{CallerID: "u", Content: "   "},
		{CallerID: "u", Content: "x", MaxTokens: -1},
	}
	for _, req := range tests {
		_, err := f.uc.Generate(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidRequest)
	}
	f.provider.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestCacheKey(t *testing.T) {
	base := &GenerateRequest{Prompt: "p", Model: "m", MaxTokens: 10, Temperature: 0.5}
	same := *base
	same.RequestID = "different"

	assert.Equal(t, CacheKey(base), CacheKey(&same))
	assert.Len(t, CacheKey(base), 64)

	for _, mutate := range []func(r *GenerateRequest){
		func(r *GenerateRequest) { r.Prompt = "q" },
		func(r *GenerateRequest) { r.Model = "n" },
		func(r *GenerateRequest) { r.MaxTokens = 11 },
		func(r *GenerateRequest) { r.Temperature = 0.6 },
	} {
		other := *base
		mutate(&other)
		assert.NotEqual(t, CacheKey(base), CacheKey(&other))
	}
}
