package biz

import (
	"context"
)

// GenerateRequest is one upstream generation call.
type GenerateRequest struct {
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
	RequestID   string
}

// GenerateResult is the normalized upstream reply.
type GenerateResult struct {
	Content      string
	TokensUsed   int
	FinishReason string
	Model        string
}

// UpstreamProvider is the LLM backend. Implementations return a
// non-retryable *AIClientError for conditions that will not succeed on
// retry (malformed request, authorization failure); every other error is
// treated as transient.
//
// Implementations are in data layer (data.FakeProvider, data.HTTPProvider),
// selected by configuration.
type UpstreamProvider interface {
	Name() string
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)
}
