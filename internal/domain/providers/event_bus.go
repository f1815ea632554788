package providers

import (
	"context"
	"fmt"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to order events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.OrderEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.OrderEvent, error)

	// Close closes the event bus and all subscriptions
	Close() error
}

const (
	// EventChannelOrderUpdates carries every order event
	EventChannelOrderUpdates = "orders:updates"

	// EventChannelOrganizationPrefix prefixes per-organization channels
	EventChannelOrganizationPrefix = "orders:org:"
)

// GetOrganizationChannel returns the channel for one organization's order events
func GetOrganizationChannel(organizationID int64) string {
	return fmt.Sprintf("%s%d", EventChannelOrganizationPrefix, organizationID)
}
