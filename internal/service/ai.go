package service

import (
	"context"
	"fmt"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/adityat54544/AI-SAAS-1/internal/biz"
	pkglog "github.com/adityat54544/AI-SAAS-1/pkg/log"
	"github.com/adityat54544/AI-SAAS-1/pkg/tokens"
)

// GenerateRequest is the body of POST /v1/generate. Caller fields left
// empty are taken from the X-Caller-* headers.
type GenerateRequest struct {
	CallerID     string   `json:"caller_id"`
	RepositoryID string   `json:"repository_id"`
	OrgID        string   `json:"org_id"`
	TaskKind     string   `json:"task_kind"`
	Content      string   `json:"content"`
	Tier         string   `json:"tier"`
	MaxTokens    int      `json:"max_tokens"`
	Temperature  *float64 `json:"temperature,omitempty"`
}

// HealthReply is the body of GET /v1/health.
type HealthReply struct {
	Status       string             `json:"status"`
	Provider     string             `json:"provider"`
	Metrics      biz.InvokerMetrics `json:"metrics"`
	Dependencies map[string]string  `json:"dependencies,omitempty"`
}

// UsageRequest addresses one counter set.
type UsageRequest struct {
	Scope string `json:"scope"`
	ID    string `json:"id"`
}

// UsageReply is the body of GET /v1/usage/{scope}/{id}.
type UsageReply struct {
	Usage *biz.UsageCounterState `json:"usage"`
	Quota biz.UsageQuota         `json:"quota"`
}

// RouteRequest is the body of POST /v1/route. When Files is set the
// estimate covers the repository files instead of Content.
type RouteRequest struct {
	TaskKind        string            `json:"task_kind"`
	Content         string            `json:"content"`
	Tier            string            `json:"tier"`
	EstimatedTokens *int              `json:"estimated_tokens,omitempty"`
	OutputTokens    int               `json:"output_tokens"`
	Files           map[string]string `json:"files,omitempty"`
	MaxFiles        int               `json:"max_files"`
}

// RouteReply is the routing decision with cost and split advice.
type RouteReply struct {
	Decision      biz.RoutingDecision        `json:"decision"`
	EstimatedCost float64                    `json:"estimated_cost"`
	ShouldSplit   bool                       `json:"should_split"`
	Repository    *tokens.RepositoryEstimate `json:"repository,omitempty"`
}

// AIService exposes the gateway over HTTP.
type AIService struct {
	uc     *biz.GatewayUsecase
	deps   biz.DependencyChecker
	logger *log.Helper
}

// NewAIService creates a new AIService instance. deps may be nil.
func NewAIService(uc *biz.GatewayUsecase, deps biz.DependencyChecker, logger log.Logger) *AIService {
	return &AIService{
		uc:     uc,
		deps:   deps,
		logger: log.NewHelper(logger),
	}
}

// Generate serves one generation request.
func (s *AIService) Generate(ctx context.Context, req *GenerateRequest) (*biz.AIResponse, error) {
	reqCtx := pkglog.GetRequestContext(ctx)
	in := biz.GatewayRequest{
		CallerID:     firstNonEmpty(req.CallerID, reqCtx.CallerID),
		RepositoryID: firstNonEmpty(req.RepositoryID, reqCtx.RepositoryID),
		OrgID:        req.OrgID,
		TaskKind:     req.TaskKind,
		Content:      req.Content,
		Tier:         firstNonEmpty(req.Tier, reqCtx.Tier),
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
	}

	s.logger.Debugw("msg", "Generate called",
		"caller_id", in.CallerID,
		"task_kind", in.TaskKind,
		"tier", in.Tier)

	resp, err := s.uc.Generate(ctx, in)
	if err != nil {
		s.logger.Warnw("msg", "generate failed", "caller_id", in.CallerID, "error", err)
		return nil, toServiceError(err)
	}
	return resp, nil
}

// Health reports breaker state, invoker metrics and dependency status.
func (s *AIService) Health(ctx context.Context) (*HealthReply, error) {
	metrics := s.uc.Invoker().Metrics()

	status := "ok"
	if metrics.Circuit.State != biz.CircuitClosed {
		status = "degraded"
	}

	reply := &HealthReply{
		Status:   status,
		Provider: s.uc.ProviderName(),
		Metrics:  metrics,
	}
	if s.deps != nil {
		reply.Dependencies = s.deps.Ping(ctx)
	}
	return reply, nil
}

// Usage returns the counters of one scope.
func (s *AIService) Usage(ctx context.Context, req *UsageRequest) (*UsageReply, error) {
	scope, ok := biz.ParseUsageScope(req.Scope)
	if !ok {
		return nil, toServiceError(fmt.Errorf("%w: unknown scope %q", biz.ErrInvalidRequest, req.Scope))
	}
	if req.ID == "" {
		return nil, toServiceError(fmt.Errorf("%w: id is required", biz.ErrInvalidRequest))
	}

	state, err := s.uc.Guard().UsageStats(ctx, scope, req.ID)
	if err != nil {
		return nil, toServiceError(err)
	}
	return &UsageReply{Usage: state, Quota: s.uc.Guard().Quota()}, nil
}

// Route returns the model the gateway would pick, without calling it.
func (s *AIService) Route(_ context.Context, req *RouteRequest) (*RouteReply, error) {
	if req.Content == "" && len(req.Files) == 0 {
		return nil, toServiceError(fmt.Errorf("%w: content or files is required", biz.ErrInvalidRequest))
	}

	router := s.uc.Router()
	tier := firstNonEmpty(req.Tier, biz.TierFree)

	reply := &RouteReply{}
	if len(req.Files) > 0 {
		decision, repo := router.SelectForRepository(req.TaskKind, req.Content, tier, req.Files, req.MaxFiles)
		reply.Decision, reply.Repository = decision, &repo
	} else {
		reply.Decision = router.Select(req.TaskKind, req.Content, tier, req.EstimatedTokens)
	}
	reply.EstimatedCost = router.EstimateCost(reply.Decision.Model, reply.Decision.EstimatedTokens, req.OutputTokens)
	reply.ShouldSplit = router.ShouldSplit(reply.Decision.EstimatedTokens, reply.Decision.Model)
	return reply, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
