package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
)

func TestAttemptTracker_ConcurrentRecordIsGapless(t *testing.T) {
	db := newMemDB()
	tracker := NewAttemptTracker(db)
	orderID := db.seedOrder(entities.Order{ReferringOrganizationID: referringOrg, Status: entities.OrderStatusDraft})

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := orderID
			err := tracker.Record(context.Background(), &entities.ValidationAttempt{
				OrderID:       &id,
				OutcomeStatus: entities.ValidationStatusInappropriate,
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	attempts := db.attemptsFor(orderID)
	require.Len(t, attempts, n)
	for i, a := range attempts {
		assert.Equal(t, i+1, a.AttemptNumber)
	}
}

func TestAttemptTracker_UnknownOrder(t *testing.T) {
	db := newMemDB()
	tracker := NewAttemptTracker(db)
	id := int64(4040)
	attempt := &entities.ValidationAttempt{OrderID: &id}

	err := tracker.Record(context.Background(), attempt)

	assert.Error(t, err)
	assert.Zero(t, attempt.AttemptNumber)
	assert.Empty(t, db.snapshot().attempts)
}

func TestAttemptTracker_WithoutOrder(t *testing.T) {
	db := newMemDB()
	tracker := NewAttemptTracker(db)

	for i := 0; i < 2; i++ {
		attempt := &entities.ValidationAttempt{OutcomeStatus: entities.ValidationStatusAppropriate}
		require.NoError(t, tracker.Record(context.Background(), attempt))
		assert.Equal(t, 1, attempt.AttemptNumber)
	}
	assert.Len(t, db.snapshot().attempts, 2)
}

func TestAttemptTracker_CancelledContext(t *testing.T) {
	db := newMemDB()
	tracker := NewAttemptTracker(db)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tracker.Record(ctx, &entities.ValidationAttempt{})
	assert.ErrorIs(t, err, context.Canceled)

	err = tracker.RecordUsage(ctx, nil, physician, []entities.ProviderCall{{Provider: "anthropic"}})
	assert.ErrorIs(t, err, context.Canceled)

	assert.Zero(t, db.commits)
}

func TestAttemptTracker_RecordUsage(t *testing.T) {
	db := newMemDB()
	tracker := NewAttemptTracker(db)
	orderID := int64(5)

	err := tracker.RecordUsage(context.Background(), &orderID, physician, []entities.ProviderCall{
		{Provider: "anthropic", Model: "claude", Err: errors.New("overloaded"), LatencyMs: 900},
		{Provider: "openai", Model: "gpt-4o", PromptTokens: 80, CompletionTokens: 40, TotalTokens: 120, LatencyMs: 300},
	})

	require.NoError(t, err)
	usage := db.snapshot().usage
	require.Len(t, usage, 2)
	assert.Equal(t, "error", usage[0].Status)
	assert.Equal(t, "overloaded", usage[0].ErrorMessage)
	assert.Equal(t, "success", usage[1].Status)
	assert.Equal(t, 120, usage[1].TotalTokens)
	assert.Equal(t, physician, usage[1].UserID)
	assert.Equal(t, orderID, *usage[1].OrderID)
}

func TestAttemptTracker_RecordUsageNoCalls(t *testing.T) {
	db := newMemDB()
	tracker := NewAttemptTracker(db)

	require.NoError(t, tracker.RecordUsage(context.Background(), nil, physician, nil))
	assert.Zero(t, db.commits)
}
