package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/providers"
	"github.com/zatekoja/RadiologyOrderIntake/backend/pkg/config"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
)

// Options tune request parameters shared by every provider in the chain
type Options struct {
	MaxTokens   int
	Temperature float64
}

// Client speaks the chat completions protocol. It backs both the OpenAI and
// the Grok adapters, which differ only in name, base URL and credentials.
type Client struct {
	name       string
	apiKey     string
	model      string
	baseURL    string
	opts       Options
	httpClient *http.Client
	limiter    *tokenBucket
}

// NewClient creates a chat completions client. A missing API key is not an
// error here; Complete reports ErrMissingCredentials so the chain can move on.
func NewClient(name string, cfg config.ProviderConfig, opts Options) *Client {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4000
	}

	return &Client{
		name:    name,
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: baseURL,
		opts:    opts,
		// per-call deadlines come from the gateway context
		httpClient: &http.Client{},
		limiter:    newTokenBucket(cfg.RateLimitRPM, cfg.RateLimitBurst),
	}
}

// Name returns the provider name
func (c *Client) Name() string { return c.name }

// Model returns the configured model
func (c *Client) Model() string { return c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends the prompt as a single user message
func (c *Client) Complete(ctx context.Context, prompt string) (*entities.LLMResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%s: %w", c.name, providers.ErrMissingCredentials)
	}

	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		recordRateLimitWait(ctx, c.name, c.model, time.Since(waitStart))
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: providers.ValidationSystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return nil, fmt.Errorf("%s: %w: status %d", c.name, providers.ErrMissingCredentials, resp.StatusCode)
		}
		return nil, fmt.Errorf("%s request failed with status %d", c.name, resp.StatusCode)
	}

	var envelope chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%s response decode failed: %w", c.name, err)
	}

	out := &entities.LLMResponse{
		Provider:         c.name,
		Model:            c.model,
		PromptTokens:     envelope.Usage.PromptTokens,
		CompletionTokens: envelope.Usage.CompletionTokens,
		TotalTokens:      envelope.Usage.TotalTokens,
		LatencyMs:        time.Since(start).Milliseconds(),
	}
	if envelope.Model != "" {
		out.Model = envelope.Model
	}
	if out.TotalTokens == 0 {
		out.TotalTokens = out.PromptTokens + out.CompletionTokens
	}

	if len(envelope.Choices) == 0 || strings.TrimSpace(envelope.Choices[0].Message.Content) == "" {
		// usage is still returned so the attempt can be costed
		return out, fmt.Errorf("%s response missing message content", c.name)
	}
	out.Content = envelope.Choices[0].Message.Content
	return out, nil
}

func newTokenBucket(rpm int, burst int) *tokenBucket {
	if rpm < 0 {
		return nil
	}
	if rpm == 0 {
		rpm = 60
	}
	if burst <= 0 {
		burst = 5
	}
	return newTokenBucketWithRate(rpm, burst)
}

type tokenBucket struct {
	tokens chan struct{}
}

func newTokenBucketWithRate(rpm int, burst int) *tokenBucket {
	bucket := &tokenBucket{
		tokens: make(chan struct{}, burst),
	}

	for i := 0; i < burst; i++ {
		bucket.tokens <- struct{}{}
	}

	interval := time.Minute / time.Duration(rpm)
	if interval <= 0 {
		interval = time.Millisecond
	}

	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			select {
			case bucket.tokens <- struct{}{}:
			default:
			}
		}
	}()

	return bucket
}

func (b *tokenBucket) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.tokens:
		return nil
	}
}

var (
	rateLimitOnce sync.Once
	rateLimitWait metric.Float64Histogram
)

func recordRateLimitWait(ctx context.Context, provider, model string, wait time.Duration) {
	rateLimitOnce.Do(func() {
		meter := otel.Meter("github.com/zatekoja/RadiologyOrderIntake/backend/llm")
		h, err := meter.Float64Histogram(
			"ai.llm.rate_limit.wait",
			metric.WithDescription("Time spent waiting for the client-side rate limiter in milliseconds"),
			metric.WithUnit("ms"),
		)
		if err == nil {
			rateLimitWait = h
		}
	})
	if rateLimitWait == nil {
		return
	}
	rateLimitWait.Record(ctx, float64(wait.Milliseconds()), metric.WithAttributes(
		attribute.String("ai.provider", provider),
		attribute.String("ai.model", model),
	))
}
