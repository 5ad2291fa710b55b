package data

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/tidwall/gjson"
	"golang.org/x/net/proxy"

	"github.com/adityat54544/AI-SAAS-1/internal/biz"
	"github.com/adityat54544/AI-SAAS-1/internal/conf"
	pkglog "github.com/adityat54544/AI-SAAS-1/pkg/log"
	"github.com/adityat54544/AI-SAAS-1/pkg/workpool"
)

const (
	// ProviderKindHTTP selects HTTPProvider.
	ProviderKindHTTP = "http"

	// DefaultProviderBaseURL is the Generative Language API endpoint.
	DefaultProviderBaseURL = "https://generativelanguage.googleapis.com"

	// DefaultProviderTimeout bounds a single HTTP exchange.
	DefaultProviderTimeout = 60 * time.Second

	// UserAgent is sent on every upstream request.
	UserAgent = "aiguard/1.0"

	// maxErrorBody caps how much of an error body is kept in messages.
	maxErrorBody = 512
)

// HTTPProvider calls a Gemini-style generateContent endpoint. The number of
// concurrent requests is bounded by a worker pool.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
	pool    *workpool.Pool
	logger  *pkglog.LogHelper
}

// NewHTTPProvider creates the HTTP upstream from configuration.
func NewHTTPProvider(c *conf.AI_Provider, logger log.Logger) (*HTTPProvider, error) {
	if c == nil {
		return nil, fmt.Errorf("provider configuration is required")
	}
	if c.APIKey == "" {
		return nil, fmt.Errorf("provider api key cannot be empty")
	}

	timeout := c.Timeout.AsDuration()
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	client, err := createHTTPClient(c.ProxyURL, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}

	baseURL := strings.TrimSuffix(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultProviderBaseURL
	}

	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  c.APIKey,
		client:  client,
		pool:    workpool.New(c.MaxConcurrency),
		logger:  pkglog.NewLogHelper(logger),
	}, nil
}

var _ biz.UpstreamProvider = (*HTTPProvider)(nil)

// Name implements biz.UpstreamProvider.
func (p *HTTPProvider) Name() string { return "gemini" }

// PoolStats returns the concurrency limiter occupancy.
func (p *HTTPProvider) PoolStats() workpool.Stats { return p.pool.Stats() }

type generateContentRequest struct {
	Contents         []generateContent `json:"contents"`
	GenerationConfig generationConfig  `json:"generationConfig"`
}

type generateContent struct {
	Role  string         `json:"role,omitempty"`
	Parts []generatePart `json:"parts"`
}

type generatePart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
	Temperature     float64 `json:"temperature"`
}

// Generate implements biz.UpstreamProvider.
func (p *HTTPProvider) Generate(ctx context.Context, req *biz.GenerateRequest) (*biz.GenerateResult, error) {
	return workpool.Run(ctx, p.pool, func(ctx context.Context) (*biz.GenerateResult, error) {
		return p.generate(ctx, req)
	})
}

func (p *HTTPProvider) generate(ctx context.Context, req *biz.GenerateRequest) (*biz.GenerateResult, error) {
	body, err := json.Marshal(generateContentRequest{
		Contents: []generateContent{{Role: "user", Parts: []generatePart{{Text: req.Prompt}}}},
		GenerationConfig: generationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
		},
	})
	if err != nil {
		return nil, biz.NewAIClientError("failed to encode request", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, url.PathEscape(req.Model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, biz.NewAIClientError("failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", UserAgent)
	httpReq.Header.Set("x-goog-api-key", p.apiKey)
	if req.RequestID != "" {
		httpReq.Header.Set("X-Request-ID", req.RequestID)
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		// 网络错误，可重试
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	respBody, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, respBody)
	}
	if !gjson.ValidBytes(respBody) {
		return nil, fmt.Errorf("invalid upstream response format")
	}

	result, err := parseGenerateResponse(respBody, req)
	if err != nil {
		return nil, err
	}

	p.logger.UpstreamUsage(ctx, result.Model, int64(result.TokensUsed), float64(time.Since(start).Milliseconds()),
		"finish_reason", result.FinishReason)
	return result, nil
}

func parseGenerateResponse(body []byte, req *biz.GenerateRequest) (*biz.GenerateResult, error) {
	parsed := gjson.ParseBytes(body)

	candidate := parsed.Get("candidates.0")
	if !candidate.Exists() {
		if reason := parsed.Get("promptFeedback.blockReason").String(); reason != "" {
			return nil, biz.NewAIClientError("prompt blocked by upstream: "+reason, nil)
		}
		return nil, fmt.Errorf("upstream returned no candidates")
	}

	var sb strings.Builder
	for _, part := range candidate.Get("content.parts.#.text").Array() {
		sb.WriteString(part.String())
	}
	content := sb.String()

	tokens := int(parsed.Get("usageMetadata.totalTokenCount").Int())
	if tokens <= 0 {
		tokens = len(req.Prompt)/4 + len(content)/4
	}

	model := parsed.Get("modelVersion").String()
	if model == "" {
		model = req.Model
	}

	return &biz.GenerateResult{
		Content:      content,
		TokensUsed:   tokens,
		FinishReason: normalizeFinishReason(candidate.Get("finishReason").String()),
		Model:        model,
	}, nil
}

func normalizeFinishReason(reason string) string {
	switch reason {
	case "", "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	default:
		return strings.ToLower(reason)
	}
}

// statusError maps an upstream HTTP status to an error. Request and
// authorization failures are terminal; rate limits and server errors are
// retried.
func statusError(status int, body []byte) error {
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = string(body)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
	}

	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusUnprocessableEntity:
		return biz.NewAIClientError(fmt.Sprintf("client error (HTTP %d)", status), fmt.Errorf("%s", msg))
	case http.StatusTooManyRequests:
		return fmt.Errorf("rate limited (HTTP 429): %s", msg)
	default:
		return fmt.Errorf("server error (HTTP %d): %s", status, msg)
	}
}

// createHTTPClient 创建 HTTP 客户端（支持代理和自定义超时）
func createHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}

		switch parsed.Scheme {
		case "socks5", "socks5h":
			dialer, err := createSOCKS5Dialer(parsed)
			if err != nil {
				return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
			}
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				transport.DialContext = cd.DialContext
			} else {
				transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
					return dialer.Dial(network, addr)
				}
			}

		case "http", "https":
			transport.Proxy = http.ProxyURL(parsed)

		default:
			return nil, fmt.Errorf("unsupported proxy scheme: %s (supported: socks5, http, https)", parsed.Scheme)
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}

// createSOCKS5Dialer 创建 SOCKS5 代理 dialer
func createSOCKS5Dialer(parsed *url.URL) (proxy.Dialer, error) {
	var auth *proxy.Auth
	if parsed.User != nil {
		password, _ := parsed.User.Password()
		auth = &proxy.Auth{
			User:     parsed.User.Username(),
			Password: password,
		}
	}

	host := parsed.Host
	if parsed.Port() == "" {
		host = net.JoinHostPort(parsed.Hostname(), "1080") // SOCKS5 默认端口
	}

	return proxy.SOCKS5("tcp", host, auth, proxy.Direct)
}
