package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/repositories"
)

// AttemptTracker persists validation attempts and provider usage. Every
// method is best-effort: errors are logged and counted, and returned only so
// callers can tell whether the write landed.
type AttemptTracker struct {
	tx repositories.TxManager
}

// NewAttemptTracker creates a new attempt tracker
func NewAttemptTracker(tx repositories.TxManager) *AttemptTracker {
	return &AttemptTracker{tx: tx}
}

// Record numbers and inserts one attempt. For an order, the row lock is taken
// before the next number is computed, so concurrent writers get 1..N with no
// gaps or repeats. Attempts without an order are always number 1. Nothing is
// written once ctx is done.
func (t *AttemptTracker) Record(ctx context.Context, attempt *entities.ValidationAttempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := t.tx.WithinTx(ctx, func(ctx context.Context, uow repositories.UnitOfWork) error {
		attempt.AttemptNumber = 1
		if attempt.OrderID != nil {
			if _, err := uow.Orders().LockByID(ctx, *attempt.OrderID); err != nil {
				return err
			}
			next, err := uow.Attempts().NextAttemptNumber(ctx, *attempt.OrderID)
			if err != nil {
				return err
			}
			attempt.AttemptNumber = next
		}
		_, err := uow.Attempts().Insert(ctx, attempt)
		return err
	})
	if err != nil {
		attempt.AttemptNumber = 0
		recordAttemptLogFailure(ctx, "attempt")
		log.Error().Err(err).Interface("order_id", attempt.OrderID).Msg("failed to record validation attempt")
		return err
	}
	return nil
}

// RecordUsage writes one usage row per provider call
func (t *AttemptTracker) RecordUsage(ctx context.Context, orderID *int64, userID int64, calls []entities.ProviderCall) error {
	if len(calls) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := t.tx.WithinTx(ctx, func(ctx context.Context, uow repositories.UnitOfWork) error {
		for _, c := range calls {
			usage := &entities.LLMUsageLog{
				OrderID:          orderID,
				UserID:           userID,
				Provider:         c.Provider,
				Model:            c.Model,
				PromptTokens:     c.PromptTokens,
				CompletionTokens: c.CompletionTokens,
				TotalTokens:      c.TotalTokens,
				LatencyMs:        c.LatencyMs,
				Status:           "success",
			}
			if c.Err != nil {
				usage.Status = "error"
				usage.ErrorMessage = c.Err.Error()
			}
			if err := uow.Attempts().InsertUsage(ctx, usage); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		recordAttemptLogFailure(ctx, "usage")
		log.Error().Err(err).Interface("order_id", orderID).Int("calls", len(calls)).Msg("failed to record llm usage")
		return err
	}
	return nil
}
