package biz

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"

	pkglog "github.com/adityat54544/AI-SAAS-1/pkg/log"
	"github.com/adityat54544/AI-SAAS-1/pkg/parse"
)

// FallbackContent is returned while the circuit is open.
const FallbackContent = "Service temporarily unavailable. Please try again later."

// FinishReasonCircuitOpen marks fallback responses.
const FinishReasonCircuitOpen = "circuit_open"

// Gateway defaults.
const (
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.7
	DefaultTimeout     = 60 * time.Second
)

// GatewayConfig configures GatewayUsecase.
type GatewayConfig struct {
	Timeout            time.Duration
	DefaultMaxTokens   int
	DefaultTemperature float64
}

// GatewayRequest is a caller's generation request.
type GatewayRequest struct {
	CallerID     string
	RepositoryID string
	OrgID        string
	TaskKind     string
	Content      string
	Tier         string
	MaxTokens    int
	Temperature  *float64
}

// AIResponse is the normalized reply returned to callers.
type AIResponse struct {
	Content       string  `json:"content"`
	ModelUsed     string  `json:"model_used"`
	TokensUsed    int     `json:"tokens_used"`
	FinishReason  string  `json:"finish_reason"`
	RequestID     string  `json:"request_id"`
	LatencyMs     float64 `json:"latency_ms"`
	FromCache     bool    `json:"from_cache"`
	FallbackUsed  bool    `json:"fallback_used"`
	EstimatedCost float64 `json:"estimated_cost"`
	Structured    any     `json:"structured,omitempty"`
	ParseStrategy string  `json:"parse_strategy,omitempty"`
}

// CachedResponse is what the response cache stores per prompt.
type CachedResponse struct {
	Content      string `json:"content"`
	Model        string `json:"model"`
	TokensUsed   int    `json:"tokens_used"`
	FinishReason string `json:"finish_reason"`
}

// ResponseCache caches upstream replies by request fingerprint.
// Implementation is in data layer (data.ResponseCache).
type ResponseCache interface {
	Get(ctx context.Context, key string) (*CachedResponse, bool)
	Set(ctx context.Context, key string, resp *CachedResponse)
}

// CacheKey fingerprints an upstream request.
func CacheKey(req *GenerateRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Model))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(req.MaxTokens)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(req.Temperature, 'f', -1, 64)))
	h.Write([]byte{0})
	h.Write([]byte(req.Prompt))
	return hex.EncodeToString(h.Sum(nil))
}

// GatewayUsecase runs the full request flow: route, check quota, invoke
// the upstream through the resilient invoker, record usage.
type GatewayUsecase struct {
	router   *ModelRouter
	guard    *UsageGuard
	invoker  *Invoker
	provider UpstreamProvider
	cache    ResponseCache
	cfg      GatewayConfig
	logger   *log.Helper
}

// NewGatewayUsecase creates a GatewayUsecase. cache and audit may be nil.
func NewGatewayUsecase(router *ModelRouter, guard *UsageGuard, invoker *Invoker, provider UpstreamProvider,
	cache ResponseCache, audit AuditLogger, cfg GatewayConfig, logger log.Logger) *GatewayUsecase {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = DefaultMaxTokens
	}
	if cfg.DefaultTemperature == 0 {
		cfg.DefaultTemperature = DefaultTemperature
	}

	WatchCircuit(invoker.Breaker(), provider.Name(), audit)

	return &GatewayUsecase{
		router:   router,
		guard:    guard,
		invoker:  invoker,
		provider: provider,
		cache:    cache,
		cfg:      cfg,
		logger:   log.NewHelper(logger),
	}
}

// Router returns the model router.
func (uc *GatewayUsecase) Router() *ModelRouter { return uc.router }

// Guard returns the usage guard.
func (uc *GatewayUsecase) Guard() *UsageGuard { return uc.guard }

// Invoker returns the resilient invoker.
func (uc *GatewayUsecase) Invoker() *Invoker { return uc.invoker }

// ProviderName returns the upstream provider name.
func (uc *GatewayUsecase) ProviderName() string { return uc.provider.Name() }

// Generate serves one request. Quota violations return *QuotaExceededError
// before the upstream is called. An open circuit yields a successful
// fallback response with FallbackUsed set. Exhausted retries return a
// non-retryable *AIClientError.
func (uc *GatewayUsecase) Generate(ctx context.Context, req GatewayRequest) (*AIResponse, error) {
	start := time.Now()

	if strings.TrimSpace(req.CallerID) == "" {
		return nil, fmt.Errorf("%w: caller_id is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidRequest)
	}
	if req.MaxTokens < 0 {
		return nil, fmt.Errorf("%w: max_tokens must not be negative", ErrInvalidRequest)
	}
	if req.Tier == "" {
		req.Tier = TierFree
	}

	requestID := pkglog.GetRequestID(ctx)
	if requestID == "" || requestID == "unknown" {
		requestID = uuid.NewString()
	}

	decision := uc.router.Select(req.TaskKind, req.Content, req.Tier, nil)

	upstreamReq := &GenerateRequest{
		Prompt:      req.Content,
		Model:       decision.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: uc.cfg.DefaultTemperature,
		RequestID:   requestID,
	}
	if upstreamReq.MaxTokens == 0 {
		upstreamReq.MaxTokens = uc.cfg.DefaultMaxTokens
	}
	if req.Temperature != nil {
		upstreamReq.Temperature = *req.Temperature
	}

	cacheKey := CacheKey(upstreamReq)
	if uc.cache != nil {
		if cached, ok := uc.cache.Get(ctx, cacheKey); ok {
			uc.logger.Infow("msg", "response served from cache",
				"request_id", requestID,
				"model", cached.Model)
			resp := &AIResponse{
				Content:      cached.Content,
				ModelUsed:    cached.Model,
				TokensUsed:   cached.TokensUsed,
				FinishReason: cached.FinishReason,
				RequestID:    requestID,
				FromCache:    true,
			}
			uc.attachStructured(req.TaskKind, resp)
			resp.LatencyMs = elapsedMs(start)
			return resp, nil
		}
	}

	requested := int64(decision.EstimatedTokens + upstreamReq.MaxTokens)
	if err := uc.guard.CheckQuota(ctx, req.CallerID, req.RepositoryID, req.OrgID, requested); err != nil {
		return nil, err
	}

	result, err := Execute(ctx, uc.invoker, "generate", uc.cfg.Timeout, func(ctx context.Context) (*GenerateResult, error) {
		return uc.provider.Generate(ctx, upstreamReq)
	})
	if err != nil {
		if IsCircuitOpen(err) {
			uc.logger.Warnw("msg", "circuit breaker open, returning fallback response",
				"request_id", requestID,
				"model", decision.Model)
			return &AIResponse{
				Content:      FallbackContent,
				ModelUsed:    decision.Model,
				FinishReason: FinishReasonCircuitOpen,
				RequestID:    requestID,
				LatencyMs:    elapsedMs(start),
				FallbackUsed: true,
			}, nil
		}
		return nil, err
	}

	model := result.Model
	if model == "" {
		model = decision.Model
	}

	record := uc.guard.RecordUsage(ctx, UsageInput{
		CallerID:     req.CallerID,
		RepositoryID: req.RepositoryID,
		OrgID:        req.OrgID,
		UsageKind:    usageKind(req.TaskKind),
		TokensUsed:   int64(result.TokensUsed),
		ModelName:    model,
		RequestID:    requestID,
	})

	if uc.cache != nil {
		uc.cache.Set(ctx, cacheKey, &CachedResponse{
			Content:      result.Content,
			Model:        model,
			TokensUsed:   result.TokensUsed,
			FinishReason: result.FinishReason,
		})
	}

	resp := &AIResponse{
		Content:       result.Content,
		ModelUsed:     model,
		TokensUsed:    result.TokensUsed,
		FinishReason:  result.FinishReason,
		RequestID:     requestID,
		EstimatedCost: record.EstimatedCost,
	}
	uc.attachStructured(req.TaskKind, resp)
	resp.LatencyMs = elapsedMs(start)

	uc.logger.Infow("msg", "generation completed",
		"request_id", requestID,
		"caller_id", req.CallerID,
		"model", model,
		"reason", decision.Reason,
		"tokens", result.TokensUsed,
		"latency_ms", resp.LatencyMs)

	return resp, nil
}

// attachStructured parses the content of code tasks into a structured value.
func (uc *GatewayUsecase) attachStructured(taskKind string, resp *AIResponse) {
	if !IsCodeTask(taskKind) {
		return
	}
	out := parse.Parse(resp.Content, parse.AllStrategies()...)
	if out.IsStructured() {
		resp.Structured = out.Value
		resp.ParseStrategy = out.Strategy
	}
}

func usageKind(taskKind string) string {
	switch taskKind {
	case TaskAnalysis:
		return UsageKindAnalysis
	case TaskCIGeneration:
		return UsageKindCIGen
	default:
		return UsageKindGeneration
	}
}

func elapsedMs(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}
