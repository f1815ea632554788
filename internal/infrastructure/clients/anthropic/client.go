package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/providers"
	"github.com/zatekoja/RadiologyOrderIntake/backend/pkg/config"
)

const providerName = "anthropic"

// Client adapts the Anthropic Messages API to the LLMProvider contract
type Client struct {
	client      anthropic.Client
	hasKey      bool
	model       string
	maxTokens   int64
	temperature float64
}

// NewClient builds the adapter. SDK retries are disabled; the gateway's
// provider fallback is the only retry policy.
func NewClient(cfg config.ProviderConfig, maxTokens int, temperature float64) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"))
	}
	if maxTokens <= 0 {
		maxTokens = 4000
	}

	return &Client{
		client:      anthropic.NewClient(opts...),
		hasKey:      cfg.APIKey != "",
		model:       cfg.Model,
		maxTokens:   int64(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name
func (c *Client) Name() string { return providerName }

// Model returns the configured model
func (c *Client) Model() string { return c.model }

// Complete sends the prompt as one user turn with the validation system prompt
func (c *Client) Complete(ctx context.Context, prompt string) (*entities.LLMResponse, error) {
	if !c.hasKey {
		return nil, fmt.Errorf("%s: %w", providerName, providers.ErrMissingCredentials)
	}

	start := time.Now()
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		System: []anthropic.TextBlockParam{
			{Text: providers.ValidationSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%s: %w: status %d", providerName, providers.ErrMissingCredentials, apiErr.StatusCode)
		}
		return nil, fmt.Errorf("%s request failed: %w", providerName, err)
	}

	out := &entities.LLMResponse{
		Provider:         providerName,
		Model:            c.model,
		PromptTokens:     int(message.Usage.InputTokens),
		CompletionTokens: int(message.Usage.OutputTokens),
		TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		LatencyMs:        time.Since(start).Milliseconds(),
	}
	if message.Model != "" {
		out.Model = string(message.Model)
	}

	for _, block := range message.Content {
		if block.Type == "text" && strings.TrimSpace(block.Text) != "" {
			out.Content = block.Text
			return out, nil
		}
	}
	return out, fmt.Errorf("no text content in %s response", providerName)
}
