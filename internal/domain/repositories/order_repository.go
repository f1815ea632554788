package repositories

import (
	"context"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
)

// TxManager runs fn inside one database transaction. The UnitOfWork is only
// valid for the duration of fn; an error from fn rolls everything back.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow UnitOfWork) error) error
}

// UnitOfWork exposes the transaction-scoped stores
type UnitOfWork interface {
	Orders() OrderStore
	History() OrderHistoryStore
	Attempts() AttemptStore
	Patients() PatientStore
}

// OrderStore defines order operations bound to a transaction
type OrderStore interface {
	// Create inserts a new order and returns its id
	Create(ctx context.Context, order *entities.Order) (int64, error)

	// LockByID loads the order and holds a row lock until the transaction ends
	LockByID(ctx context.Context, id int64) (*entities.Order, error)

	// Apply writes only the fields set in the patch
	Apply(ctx context.Context, id int64, patch entities.OrderPatch) error
}

// OrderReader is the non-locking read path used before a transaction starts
type OrderReader interface {
	GetByID(ctx context.Context, id int64) (*entities.Order, error)
}

// OrderHistoryStore appends audit rows
type OrderHistoryStore interface {
	Append(ctx context.Context, entry *entities.OrderHistory) error
	ListByOrder(ctx context.Context, orderID int64) ([]*entities.OrderHistory, error)
}

// AttemptStore defines validation attempt operations. Callers must hold the
// order row lock before NextAttemptNumber for the number to be stable.
type AttemptStore interface {
	NextAttemptNumber(ctx context.Context, orderID int64) (int, error)
	Insert(ctx context.Context, attempt *entities.ValidationAttempt) (int64, error)
	ListByOrder(ctx context.Context, orderID int64) ([]*entities.ValidationAttempt, error)
	// SetOutcome is the single permitted mutation, used by the override path
	SetOutcome(ctx context.Context, attemptID int64, outcome entities.ValidationStatus) error
	InsertUsage(ctx context.Context, usage *entities.LLMUsageLog) error
}

// PatientStore defines patient operations bound to a transaction
type PatientStore interface {
	GetByID(ctx context.Context, id int64) (*entities.Patient, error)
	PrimaryInsurance(ctx context.Context, patientID int64) (*entities.Insurance, error)
	// CreateTemporary materializes a walk-in patient and returns its id
	CreateTemporary(ctx context.Context, organizationID int64, info entities.PatientInfo) (int64, error)
}
