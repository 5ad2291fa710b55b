package biz

import (
	"sort"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/adityat54544/AI-SAAS-1/pkg/tokens"
)

// Task kinds understood by the router.
const (
	TaskAnalysis     = "analysis"
	TaskCIGeneration = "ci_generation"
	TaskChat         = "chat"
)

// IsCodeTask reports whether content of taskKind is source code.
func IsCodeTask(taskKind string) bool {
	return taskKind == TaskAnalysis || taskKind == TaskCIGeneration
}

// ModelProfile describes a selectable model.
type ModelProfile struct {
	Name             string   `json:"name"`
	MaxContextTokens int      `json:"max_context_tokens"`
	CostPer1KInput   float64  `json:"cost_per_1k_input"`
	CostPer1KOutput  float64  `json:"cost_per_1k_output"`
	Capabilities     []string `json:"capabilities"`
	Description      string   `json:"description"`
}

// DefaultModelProfiles returns the built-in model table.
func DefaultModelProfiles() []ModelProfile {
	return []ModelProfile{
		{
			Name:             "gemini-1.5-flash",
			MaxContextTokens: 1000000,
			CostPer1KInput:   0.00001875,
			CostPer1KOutput:  0.000075,
			Capabilities:     []string{"vision", "code"},
			Description:      "Fast and efficient for most tasks",
		},
		{
			Name:             "gemini-1.5-pro",
			MaxContextTokens: 2000000,
			CostPer1KInput:   0.00125,
			CostPer1KOutput:  0.005,
			Capabilities:     []string{"vision", "code"},
			Description:      "More capable for complex reasoning",
		},
		{
			Name:             "gemini-2.5-pro",
			MaxContextTokens: 2000000,
			CostPer1KInput:   0.00125,
			CostPer1KOutput:  0.005,
			Capabilities:     []string{"vision", "code"},
			Description:      "Most capable for complex tasks",
		},
	}
}

// ModelRouterConfig configures a ModelRouter. Zero thresholds fall back to
// the defaults.
type ModelRouterConfig struct {
	DefaultModel           string
	MidModel               string
	CapableModel           string
	SimpleThreshold        float64
	ComplexThreshold       float64
	LargeRequestTokens     int
	SplitContextPercentage float64
}

// DefaultModelRouterConfig returns the default router configuration.
func DefaultModelRouterConfig() ModelRouterConfig {
	return ModelRouterConfig{
		DefaultModel:           "gemini-1.5-flash",
		MidModel:               "gemini-1.5-pro",
		CapableModel:           "gemini-2.5-pro",
		SimpleThreshold:        0.3,
		ComplexThreshold:       0.7,
		LargeRequestTokens:     50000,
		SplitContextPercentage: 0.5,
	}
}

// RoutingDecision is the model chosen for one call.
type RoutingDecision struct {
	Model           string       `json:"model"`
	Profile         ModelProfile `json:"profile"`
	Complexity      float64      `json:"complexity"`
	EstimatedTokens int          `json:"estimated_tokens"`
	Reason          string       `json:"reason"`
}

// ModelRouter chooses a model per call from task kind, content complexity
// and caller tier. It holds no quota state.
type ModelRouter struct {
	cfg       ModelRouterConfig
	profiles  map[string]ModelProfile
	estimator *tokens.Estimator
	logger    *log.Helper
}

// NewModelRouter creates a ModelRouter over profiles.
func NewModelRouter(cfg ModelRouterConfig, profiles []ModelProfile, logger log.Logger) *ModelRouter {
	def := DefaultModelRouterConfig()
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = def.DefaultModel
	}
	if cfg.MidModel == "" {
		cfg.MidModel = def.MidModel
	}
	if cfg.CapableModel == "" {
		cfg.CapableModel = def.CapableModel
	}
	if cfg.SimpleThreshold <= 0 {
		cfg.SimpleThreshold = def.SimpleThreshold
	}
	if cfg.ComplexThreshold <= 0 {
		cfg.ComplexThreshold = def.ComplexThreshold
	}
	if cfg.LargeRequestTokens <= 0 {
		cfg.LargeRequestTokens = def.LargeRequestTokens
	}
	if cfg.SplitContextPercentage <= 0 {
		cfg.SplitContextPercentage = def.SplitContextPercentage
	}

	table := make(map[string]ModelProfile, len(profiles))
	for _, p := range profiles {
		table[p.Name] = p
	}

	return &ModelRouter{
		cfg:       cfg,
		profiles:  table,
		estimator: tokens.NewEstimator(cfg.DefaultModel),
		logger:    log.NewHelper(logger),
	}
}

// Select routes one call. Rules, first match wins:
//  1. free tier: default model
//  2. complexity below the simple threshold: default model
//  3. estimated tokens above the large-request limit: default model
//  4. complexity at or above the complex threshold on a paid tier: capable model
//  5. CI generation on a paid tier: mid-tier model
//  6. otherwise the default model
//
// For code tasks the token estimate is always recomputed with the code
// ratio; otherwise estimatedTokens is used when given.
func (r *ModelRouter) Select(taskKind, content, tier string, estimatedTokens *int) RoutingDecision {
	complexity := tokens.Complexity(content)

	var estimate int
	switch {
	case IsCodeTask(taskKind):
		estimate = r.estimator.Estimate(content, true)
	case estimatedTokens != nil:
		estimate = *estimatedTokens
	default:
		estimate = r.estimator.Estimate(content, false)
	}

	model, reason := r.selectByRules(taskKind, complexity, tier, estimate)

	decision := RoutingDecision{
		Model:           model,
		Profile:         r.profileOrDefault(model),
		Complexity:      complexity,
		EstimatedTokens: estimate,
		Reason:          reason,
	}

	r.logger.Debugw("msg", "model selected",
		"task_kind", taskKind,
		"tier", tier,
		"model", model,
		"reason", reason,
		"complexity", complexity,
		"estimated_tokens", estimate)

	return decision
}

func (r *ModelRouter) selectByRules(taskKind string, complexity float64, tier string, estimate int) (string, string) {
	if tier == TierFree {
		return r.cfg.DefaultModel, "free_tier"
	}
	if complexity < r.cfg.SimpleThreshold {
		return r.cfg.DefaultModel, "simple_content"
	}
	if estimate > r.cfg.LargeRequestTokens {
		return r.cfg.DefaultModel, "large_request"
	}
	if complexity >= r.cfg.ComplexThreshold && IsPaidTier(tier) {
		return r.cfg.CapableModel, "complex_content"
	}
	if taskKind == TaskCIGeneration && IsPaidTier(tier) {
		return r.cfg.MidModel, "ci_generation"
	}
	return r.cfg.DefaultModel, "default"
}

// Profile returns the profile of model.
func (r *ModelRouter) Profile(model string) (ModelProfile, bool) {
	p, ok := r.profiles[model]
	return p, ok
}

// Profiles returns every known profile sorted by name.
func (r *ModelRouter) Profiles() []ModelProfile {
	out := make([]ModelProfile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *ModelRouter) profileOrDefault(model string) ModelProfile {
	if p, ok := r.profiles[model]; ok {
		return p
	}
	if p, ok := r.profiles[r.cfg.DefaultModel]; ok {
		return p
	}
	return ModelProfile{Name: model}
}

// EstimateCost returns the cost of a call; unknown models cost 0.
func (r *ModelRouter) EstimateCost(model string, inputTokens, outputTokens int) float64 {
	p, ok := r.profiles[model]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1000*p.CostPer1KInput + float64(outputTokens)/1000*p.CostPer1KOutput
}

// ShouldSplit reports whether estimatedTokens exceeds the safe share of the
// model's context window. Unknown models never split.
func (r *ModelRouter) ShouldSplit(estimatedTokens int, model string) bool {
	p, ok := r.profiles[model]
	if !ok {
		return false
	}
	return float64(estimatedTokens) > float64(p.MaxContextTokens)*r.cfg.SplitContextPercentage
}

// DefaultModel returns the configured default model.
func (r *ModelRouter) DefaultModel() string {
	return r.cfg.DefaultModel
}

// EstimateTokens estimates content for taskKind with the default model's
// ratio, or the code ratio for code tasks.
func (r *ModelRouter) EstimateTokens(taskKind, content string) int {
	return r.estimator.Estimate(content, IsCodeTask(taskKind))
}

// SelectForRepository routes a task over a set of repository files. The
// repository estimate replaces the content estimate; complexity is still
// scored on content.
func (r *ModelRouter) SelectForRepository(taskKind, content, tier string, files map[string]string, maxFiles int) (RoutingDecision, tokens.RepositoryEstimate) {
	repo := r.estimator.EstimateRepository(files, maxFiles)
	complexity := tokens.Complexity(content)
	model, reason := r.selectByRules(taskKind, complexity, tier, repo.TotalTokens)

	r.logger.Debugw("msg", "model selected for repository",
		"task_kind", taskKind,
		"tier", tier,
		"model", model,
		"reason", reason,
		"file_count", repo.FileCount,
		"estimated_tokens", repo.TotalTokens)

	return RoutingDecision{
		Model:           model,
		Profile:         r.profileOrDefault(model),
		Complexity:      complexity,
		EstimatedTokens: repo.TotalTokens,
		Reason:          reason,
	}, repo
}
