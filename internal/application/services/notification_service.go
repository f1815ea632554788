package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/providers"
)

// NotificationService publishes committed order events on the event bus
// without blocking the transition that produced them
type NotificationService struct {
	bus     providers.EventBus
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewNotificationService creates a new notification service
func NewNotificationService(bus providers.EventBus, timeout time.Duration) *NotificationService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NotificationService{bus: bus, timeout: timeout}
}

// NotifyOrderEvent publishes asynchronously. Failures are logged only.
func (s *NotificationService) NotifyOrderEvent(ctx context.Context, event entities.OrderEvent) {
	if s == nil || s.bus == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	// the request context ends when the handler returns
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		channels := []string{providers.EventChannelOrderUpdates}
		if event.OrganizationID != 0 {
			channels = append(channels, providers.GetOrganizationChannel(event.OrganizationID))
		}
		for _, ch := range channels {
			if err := s.bus.Publish(pubCtx, ch, &event); err != nil {
				log.Warn().Err(err).
					Int64("order_id", event.OrderID).
					Str("event_type", string(event.EventType)).
					Str("channel", ch).
					Msg("failed to publish order event")
			}
		}
	}()
}

// Wait blocks until in-flight publishes finish
func (s *NotificationService) Wait() {
	s.wg.Wait()
}
