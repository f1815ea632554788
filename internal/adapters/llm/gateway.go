package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/providers"
	apperrors "github.com/zatekoja/RadiologyOrderIntake/backend/pkg/errors"
)

// Options configure the gateway
type Options struct {
	// Timeout bounds each provider call independently
	Timeout time.Duration
	// BreakerFailures consecutive failures open a provider's breaker. Zero
	// disables breakers.
	BreakerFailures uint32
	// BreakerCooldown is how long an open breaker skips its provider
	BreakerCooldown time.Duration
}

// ErrBreakerOpen marks a provider skipped because it has been failing
var ErrBreakerOpen = errors.New("provider circuit breaker open")

// Gateway tries providers in a fixed order and returns the first success.
// It never retries a provider within one invocation.
type Gateway struct {
	chain    []providers.LLMProvider
	breakers []*gobreaker.CircuitBreaker
	timeout  time.Duration
}

// NewGateway builds a gateway over chain, preserving order
func NewGateway(chain []providers.LLMProvider, opts Options) *Gateway {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	g := &Gateway{
		chain:    chain,
		breakers: make([]*gobreaker.CircuitBreaker, len(chain)),
		timeout:  timeout,
	}
	if opts.BreakerFailures > 0 {
		cooldown := opts.BreakerCooldown
		if cooldown <= 0 {
			cooldown = 30 * time.Second
		}
		threshold := opts.BreakerFailures
		for i, p := range chain {
			g.breakers[i] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        p.Name(),
				MaxRequests: 1,
				Timeout:     cooldown,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= threshold
				},
				OnStateChange: func(name string, from, to gobreaker.State) {
					log.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("llm provider breaker state changed")
				},
			})
		}
	}
	return g
}

// Providers returns the configured chain in order
func (g *Gateway) Providers() []providers.LLMProvider {
	return g.chain
}

// Invoke runs the chain. On exhaustion the returned Invocation still carries
// every ProviderCall so usage can be logged. A cancelled parent context stops
// the chain immediately and is returned as is.
func (g *Gateway) Invoke(ctx context.Context, prompt string) (*entities.Invocation, error) {
	inv := &entities.Invocation{}
	if len(g.chain) == 0 {
		return inv, apperrors.NewAllProvidersExhaustedError(errors.New("no llm providers configured"))
	}

	var failures []error
	for i, p := range g.chain {
		if err := ctx.Err(); err != nil {
			return inv, fmt.Errorf("llm invocation cancelled: %w", err)
		}

		call, resp := g.call(ctx, i, p, prompt)
		inv.Calls = append(inv.Calls, call)
		if call.Succeeded() {
			inv.Response = resp
			return inv, nil
		}

		if err := ctx.Err(); err != nil {
			return inv, fmt.Errorf("llm invocation cancelled: %w", err)
		}

		log.Warn().
			Err(call.Err).
			Str("provider", call.Provider).
			Str("model", call.Model).
			Int64("latency_ms", call.LatencyMs).
			Msg("llm provider failed, falling back")
		failures = append(failures, call.Err)
	}

	return inv, apperrors.NewAllProvidersExhaustedError(errors.Join(failures...))
}

func (g *Gateway) call(ctx context.Context, i int, p providers.LLMProvider, prompt string) (entities.ProviderCall, *entities.LLMResponse) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	call := entities.ProviderCall{Provider: p.Name(), Model: p.Model()}
	start := time.Now()

	var resp *entities.LLMResponse
	complete := func() (interface{}, error) {
		r, err := p.Complete(callCtx, prompt)
		resp = r
		if err == nil && (r == nil || r.Content == "") {
			err = fmt.Errorf("%s returned an empty response", p.Name())
		}
		return nil, err
	}

	var err error
	if cb := g.breakers[i]; cb != nil {
		_, err = cb.Execute(complete)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%s: %w", p.Name(), ErrBreakerOpen)
		}
	} else {
		_, err = complete()
	}

	call.LatencyMs = time.Since(start).Milliseconds()
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil && err != nil {
		err = fmt.Errorf("%s timed out after %s: %w", p.Name(), g.timeout, err)
	}
	call.Err = err

	if resp != nil {
		call.PromptTokens = resp.PromptTokens
		call.CompletionTokens = resp.CompletionTokens
		call.TotalTokens = resp.TotalTokens
		if resp.Model != "" {
			call.Model = resp.Model
		}
	}

	recordCall(ctx, call)
	return call, resp
}
