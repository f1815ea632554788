package llm

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
)

type llmMetrics struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	requestErrors   metric.Int64Counter
	tokens          metric.Int64Counter
}

var (
	metricsOnce sync.Once
	metrics     *llmMetrics
)

func ensureMetrics() *llmMetrics {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/zatekoja/RadiologyOrderIntake/backend/llm")

		requestCount, err := meter.Int64Counter(
			"ai.llm.request.count",
			metric.WithDescription("Number of LLM provider requests"),
		)
		if err != nil {
			return
		}
		requestDuration, err := meter.Float64Histogram(
			"ai.llm.request.duration",
			metric.WithDescription("LLM provider request duration in milliseconds"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			return
		}
		requestErrors, err := meter.Int64Counter(
			"ai.llm.request.errors",
			metric.WithDescription("Number of failed LLM provider requests"),
		)
		if err != nil {
			return
		}
		tokens, err := meter.Int64Counter(
			"ai.llm.tokens",
			metric.WithDescription("Tokens consumed per provider"),
		)
		if err != nil {
			return
		}

		metrics = &llmMetrics{
			requestCount:    requestCount,
			requestDuration: requestDuration,
			requestErrors:   requestErrors,
			tokens:          tokens,
		}
	})
	return metrics
}

func recordCall(ctx context.Context, call entities.ProviderCall) {
	m := ensureMetrics()
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("ai.provider", call.Provider),
		attribute.String("ai.model", call.Model),
		attribute.Bool("ai.success", call.Succeeded()),
	)
	m.requestCount.Add(ctx, 1, attrs)
	m.requestDuration.Record(ctx, float64(call.LatencyMs), attrs)
	if !call.Succeeded() {
		m.requestErrors.Add(ctx, 1, attrs)
	}
	if call.TotalTokens > 0 {
		m.tokens.Add(ctx, int64(call.TotalTokens), attrs)
	}
}
