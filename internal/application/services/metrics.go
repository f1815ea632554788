package services

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type serviceMetrics struct {
	attemptLogFailures metric.Int64Counter
	validations        metric.Int64Counter
	transitions        metric.Int64Counter
}

var (
	metricsOnce sync.Once
	metrics     *serviceMetrics
)

func ensureMetrics() *serviceMetrics {
	metricsOnce.Do(func() {
		meter := otel.Meter("github.com/zatekoja/RadiologyOrderIntake/backend/services")

		attemptLogFailures, err := meter.Int64Counter(
			"intake.attempt_log.failures",
			metric.WithDescription("Validation attempt or usage writes that failed and were swallowed"),
		)
		if err != nil {
			return
		}
		validations, err := meter.Int64Counter(
			"intake.validation.count",
			metric.WithDescription("Completed validations by outcome"),
		)
		if err != nil {
			return
		}
		transitions, err := meter.Int64Counter(
			"intake.order.transitions",
			metric.WithDescription("Committed order lifecycle transitions"),
		)
		if err != nil {
			return
		}

		metrics = &serviceMetrics{
			attemptLogFailures: attemptLogFailures,
			validations:        validations,
			transitions:        transitions,
		}
	})
	return metrics
}

func recordAttemptLogFailure(ctx context.Context, kind string) {
	if m := ensureMetrics(); m != nil {
		m.attemptLogFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
}

func recordValidation(ctx context.Context, outcome string) {
	if m := ensureMetrics(); m != nil {
		m.validations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}
}

func recordTransition(ctx context.Context, event string) {
	if m := ensureMetrics(); m != nil {
		m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
	}
}
