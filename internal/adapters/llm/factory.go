package llm

import (
	"fmt"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/providers"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/infrastructure/clients/anthropic"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/infrastructure/clients/openai"
	"github.com/zatekoja/RadiologyOrderIntake/backend/pkg/config"
)

// Provider names accepted in LLM_PROVIDER_ORDER
const (
	ProviderAnthropic = "anthropic"
	ProviderGrok      = "grok"
	ProviderOpenAI    = "openai"
)

const defaultGrokBaseURL = "https://api.x.ai/v1"

// NewChain builds the adapters named in cfg.ProviderOrder, in that order.
// Adapters without credentials are still built; they fail fast at call time
// and the gateway moves past them.
func NewChain(cfg config.LLMConfig) ([]providers.LLMProvider, error) {
	opts := openai.Options{MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature}

	seen := make(map[string]bool, len(cfg.ProviderOrder))
	chain := make([]providers.LLMProvider, 0, len(cfg.ProviderOrder))
	for _, name := range cfg.ProviderOrder {
		if seen[name] {
			return nil, fmt.Errorf("llm provider %q listed twice", name)
		}
		seen[name] = true

		switch name {
		case ProviderAnthropic:
			chain = append(chain, anthropic.NewClient(cfg.Anthropic, cfg.MaxTokens, cfg.Temperature))
		case ProviderGrok:
			grok := cfg.Grok
			if grok.BaseURL == "" {
				grok.BaseURL = defaultGrokBaseURL
			}
			chain = append(chain, openai.NewClient(ProviderGrok, grok, opts))
		case ProviderOpenAI:
			chain = append(chain, openai.NewClient(ProviderOpenAI, cfg.OpenAI, opts))
		default:
			return nil, fmt.Errorf("unknown llm provider %q", name)
		}
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no llm providers configured")
	}
	return chain, nil
}

// NewGatewayFromConfig wires the configured chain into a gateway
func NewGatewayFromConfig(cfg config.LLMConfig) (*Gateway, error) {
	chain, err := NewChain(cfg)
	if err != nil {
		return nil, err
	}
	return NewGateway(chain, Options{
		Timeout:         cfg.Timeout,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
	}), nil
}
