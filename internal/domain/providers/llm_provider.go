package providers

import (
	"context"
	"errors"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
)

// ErrMissingCredentials is returned by an adapter with no API key configured.
var ErrMissingCredentials = errors.New("llm provider credentials are not configured")

// LLMProvider is the contract every provider adapter in the fallback chain satisfies
type LLMProvider interface {
	// Name identifies the provider in logs and usage rows (anthropic, grok, openai)
	Name() string

	// Model is the configured model identifier
	Model() string

	// Complete sends one prompt. On failure the returned response may still be
	// non-nil and carry whatever token usage the provider reported.
	Complete(ctx context.Context, prompt string) (*entities.LLMResponse, error)
}

// LLMGateway invokes the provider chain
type LLMGateway interface {
	Invoke(ctx context.Context, prompt string) (*entities.Invocation, error)
}

// ValidationSystemPrompt is sent as the system message by every adapter.
const ValidationSystemPrompt = "You are a clinical decision support assistant that checks radiology orders " +
	"against appropriate use criteria. Respond only with the requested JSON object."
