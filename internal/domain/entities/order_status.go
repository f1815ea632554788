package entities

// OrderStatus is the order lifecycle state. It is distinct from QueueStatus.
type OrderStatus string

const (
	OrderStatusDraft            OrderStatus = "draft"
	OrderStatusValidated        OrderStatus = "validated"
	OrderStatusValidationFailed OrderStatus = "validation_failed"
	OrderStatusPendingAdmin     OrderStatus = "pending_admin"
	OrderStatusPendingRadiology OrderStatus = "pending_radiology"
	OrderStatusScheduled        OrderStatus = "scheduled"
	OrderStatusCompleted        OrderStatus = "completed"
	OrderStatusCancelled        OrderStatus = "cancelled"
)

// orderTransitions is the forward transition graph. Cancellation is listed
// explicitly for every non-terminal state.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusDraft:            {OrderStatusValidated, OrderStatusValidationFailed, OrderStatusPendingAdmin, OrderStatusCancelled},
	OrderStatusValidated:        {OrderStatusValidationFailed, OrderStatusPendingAdmin, OrderStatusCancelled},
	OrderStatusValidationFailed: {OrderStatusValidated, OrderStatusCancelled},
	OrderStatusPendingAdmin:     {OrderStatusPendingRadiology, OrderStatusCancelled},
	OrderStatusPendingRadiology: {OrderStatusScheduled, OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusScheduled:        {OrderStatusCompleted, OrderStatusCancelled},
	OrderStatusCompleted:        {},
	OrderStatusCancelled:        {},
}

// ParseOrderStatus returns the status for an exact snake_case wire value.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	status := OrderStatus(s)
	_, ok := orderTransitions[status]
	return status, ok
}

// CanTransitionTo reports whether from -> to is an edge of the lifecycle graph.
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// IsValidatable reports whether a dictation may still be (re)validated.
func (s OrderStatus) IsValidatable() bool {
	return s == OrderStatusDraft || s == OrderStatusValidated || s == OrderStatusValidationFailed
}

// IsFinalizable reports whether the physician may sign the order.
func (s OrderStatus) IsFinalizable() bool {
	return s == OrderStatusDraft || s == OrderStatusValidated
}

// IsRadiologyOwned reports whether status updates belong to the radiology organization.
func (s OrderStatus) IsRadiologyOwned() bool {
	return s == OrderStatusPendingRadiology || s == OrderStatusScheduled
}

// QueueStatus is the vocabulary used by admin and radiology work queues.
type QueueStatus string

const (
	QueueStatusPendingReview QueueStatus = "pending_review"
	QueueStatusInProgress    QueueStatus = "in_progress"
	QueueStatusCompleted     QueueStatus = "completed"
	QueueStatusCancelled     QueueStatus = "cancelled"
)

// QueueStatusFor maps a lifecycle status onto the queue vocabulary. Orders
// still with the referring physician are not on any queue.
func QueueStatusFor(s OrderStatus) (QueueStatus, bool) {
	switch s {
	case OrderStatusPendingAdmin, OrderStatusPendingRadiology:
		return QueueStatusPendingReview, true
	case OrderStatusScheduled:
		return QueueStatusInProgress, true
	case OrderStatusCompleted:
		return QueueStatusCompleted, true
	case OrderStatusCancelled:
		return QueueStatusCancelled, true
	default:
		return "", false
	}
}
