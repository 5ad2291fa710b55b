package data

import (
	"context"
	"strings"
	"sync"

	"github.com/go-kratos/kratos/v2/log"

	"github.com/adityat54544/AI-SAAS-1/internal/biz"
)

// ProviderKindFake selects FakeProvider.
const ProviderKindFake = "fake"

const (
	fakeAnalysisResponse = `{"summary":"Mock analysis for testing","overall_score":85,` +
		`"recommendations":[{"category":"code_quality","severity":"info","title":"Test recommendation",` +
		`"description":"This is a mock recommendation for testing"}],"security_score":90,` +
		`"performance_score":85,"code_quality_score":80,"ci_cd_score":75,"dependencies_score":85}`
	fakeCIResponse = `{"config_yaml":"# Mock CI configuration\nname: CI\non: [push]\njobs:\n  build:\n` +
		`    runs-on: ubuntu-latest\n    steps:\n      - uses: actions/checkout@v4",` +
		`"explanations":["Mock CI configuration for testing"]}`
	fakeDefaultResponse = "Mock response for testing purposes"
)

// FakeProvider answers without network access. It is used in test and CI
// environments and when no API key is configured.
type FakeProvider struct {
	mu       sync.Mutex
	failures []error
	calls    int
	logger   *log.Helper
}

// NewFakeProvider creates a fake upstream.
func NewFakeProvider(logger log.Logger) *FakeProvider {
	return &FakeProvider{logger: log.NewHelper(logger)}
}

var _ biz.UpstreamProvider = (*FakeProvider)(nil)

// Name implements biz.UpstreamProvider.
func (p *FakeProvider) Name() string { return ProviderKindFake }

// FailNext makes the next len(errs) calls return errs in order.
func (p *FakeProvider) FailNext(errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, errs...)
}

// Calls returns how many times Generate was invoked.
func (p *FakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Generate returns a canned reply chosen by prompt keywords.
func (p *FakeProvider) Generate(ctx context.Context, req *biz.GenerateRequest) (*biz.GenerateResult, error) {
	p.mu.Lock()
	p.calls++
	var scripted error
	if len(p.failures) > 0 {
		scripted, p.failures = p.failures[0], p.failures[1:]
	}
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if scripted != nil {
		return nil, scripted
	}

	content := fakeContent(req.Prompt)
	p.logger.Debugw("msg", "fake upstream reply", "model", req.Model, "request_id", req.RequestID)

	return &biz.GenerateResult{
		Content:      content,
		TokensUsed:   len(req.Prompt)/4 + len(content)/4,
		FinishReason: "stop",
		Model:        req.Model,
	}, nil
}

func fakeContent(prompt string) string {
	lower := strings.ToLower(prompt)
	switch {
	case strings.Contains(lower, "analysis") || strings.Contains(lower, "analyze"):
		return fakeAnalysisResponse
	case strings.Contains(lower, "ci") || strings.Contains(lower, "pipeline"):
		return fakeCIResponse
	default:
		return fakeDefaultResponse
	}
}
