package providers

import (
	"context"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
)

// NotificationService receives order events after a transition commits.
// Implementations must not block the caller and must swallow their own failures.
type NotificationService interface {
	NotifyOrderEvent(ctx context.Context, event entities.OrderEvent)
}

// FileUploadService stores a captured signature and returns its object key
type FileUploadService interface {
	ProcessSignature(ctx context.Context, orderID int64, userID int64, signatureData string) (string, error)
}
