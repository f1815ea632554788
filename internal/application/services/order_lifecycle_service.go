package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/providers"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/repositories"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/RadiologyOrderIntake/backend/pkg/errors"
)

// DefaultOverrideMinAttempts is the number of failing attempts that unlock an override
const DefaultOverrideMinAttempts = 3

// Caller identifies the user and organization acting on an order
type Caller struct {
	UserID         int64
	OrganizationID int64
}

// FinalizeRequest is the physician's signed order payload
type FinalizeRequest struct {
	ClinicalIndication         string                `json:"clinicalIndication"`
	FinalCPTCode               string                `json:"finalCPTCode"`
	FinalCPTCodeDescription    string                `json:"finalCPTCodeDescription"`
	FinalICD10Codes            []string              `json:"finalICD10Codes"`
	FinalICD10CodeDescriptions []string              `json:"finalICD10CodeDescriptions"`
	FinalValidationStatus      string                `json:"finalValidationStatus"`
	FinalComplianceScore       *float64              `json:"finalComplianceScore"`
	Overridden                 bool                  `json:"overridden"`
	OverrideJustification      string                `json:"overrideJustification"`
	IsUrgentOverride           bool                  `json:"isUrgentOverride"`
	SignatureData              string                `json:"signatureData"`
	IsTemporaryPatient         bool                  `json:"isTemporaryPatient"`
	PatientInfo                *entities.PatientInfo `json:"patientInfo"`
}

// TransitionResult reports the committed state of an order
type TransitionResult struct {
	Success bool                 `json:"success"`
	OrderID int64                `json:"orderId"`
	Status  entities.OrderStatus `json:"status"`
	Message string               `json:"message"`
}

// ValidationOutcome is what the validation pipeline hands the state machine.
// Result is nil when the provider output could not be parsed.
type ValidationOutcome struct {
	Caller                  Caller
	OrderID                 *int64
	DictationText           string
	PatientInfo             *entities.PatientInfo
	RadiologyOrganizationID *int64
	Result                  *entities.ValidationResult
}

// OrderLifecycleService owns every order status transition. Each transition
// locks the order row, checks authorization and preconditions before any
// write, and commits the order update together with its history row.
type OrderLifecycleService struct {
	tx                  repositories.TxManager
	orders              repositories.OrderReader
	notifier            providers.NotificationService
	uploads             providers.FileUploadService
	overrideMinAttempts int
	now                 func() time.Time
}

// NewOrderLifecycleService creates the state machine. notifier and uploads may be nil.
func NewOrderLifecycleService(
	tx repositories.TxManager,
	orders repositories.OrderReader,
	notifier providers.NotificationService,
	uploads providers.FileUploadService,
	overrideMinAttempts int,
) *OrderLifecycleService {
	if overrideMinAttempts <= 0 {
		overrideMinAttempts = DefaultOverrideMinAttempts
	}
	return &OrderLifecycleService{
		tx:                  tx,
		orders:              orders,
		notifier:            notifier,
		uploads:             uploads,
		overrideMinAttempts: overrideMinAttempts,
		now:                 time.Now,
	}
}

type committedEvent struct {
	orderID int64
	orgID   int64
	event   entities.OrderEventType
	from    entities.OrderStatus
	to      entities.OrderStatus
}

// ApplyValidationOutcome creates the draft order when needed and moves it
// according to the parsed result: appropriate takes draft to validated, a
// failing or unparseable result takes draft or validated to
// validation_failed. A validation_failed order only leaves through Override.
// An outcome that leaves the status unchanged is recorded as revalidated.
// An unparseable result needs an existing order.
func (s *OrderLifecycleService) ApplyValidationOutcome(ctx context.Context, in ValidationOutcome) (int64, entities.OrderStatus, error) {
	if in.OrderID == nil && in.Result == nil {
		return 0, "", apperrors.NewValidationError("an unparseable validation result needs an existing order")
	}
	var events []committedEvent
	var orderID int64
	var status entities.OrderStatus

	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow repositories.UnitOfWork) error {
		events = events[:0]
		var order *entities.Order

		if in.OrderID == nil {
			patientID, err := s.resolveExistingPatient(ctx, uow, in.Caller.OrganizationID, in.PatientInfo)
			if err != nil {
				return err
			}
			order = &entities.Order{
				ReferringOrganizationID: in.Caller.OrganizationID,
				RadiologyOrganizationID: in.RadiologyOrganizationID,
				PatientID:               patientID,
				Status:                  entities.OrderStatusDraft,
				DictationText:           in.DictationText,
				CreatedBy:               in.Caller.UserID,
			}
			id, err := uow.Orders().Create(ctx, order)
			if err != nil {
				return err
			}
			order.ID = id
			if err := uow.History().Append(ctx, &entities.OrderHistory{
				OrderID:   id,
				UserID:    in.Caller.UserID,
				EventType: entities.OrderEventCreated,
				NewStatus: entities.OrderStatusDraft,
			}); err != nil {
				return err
			}
			events = append(events, committedEvent{id, order.ReferringOrganizationID, entities.OrderEventCreated, "", entities.OrderStatusDraft})
		} else {
			locked, err := uow.Orders().LockByID(ctx, *in.OrderID)
			if err != nil {
				return err
			}
			if locked.ReferringOrganizationID != in.Caller.OrganizationID {
				return unauthorized(locked.ID)
			}
			if !locked.Status.IsValidatable() {
				return apperrors.NewInvalidStateError("validate", string(locked.Status))
			}
			order = locked
		}

		from := order.Status
		to := from
		event := entities.OrderEventValidationFailed
		if in.Result != nil && !in.Result.ValidationStatus.IsFailing() {
			event = entities.OrderEventValidated
			if from.CanTransitionTo(entities.OrderStatusValidated) && from != entities.OrderStatusValidationFailed {
				to = entities.OrderStatusValidated
			}
		} else if from.CanTransitionTo(entities.OrderStatusValidationFailed) {
			to = entities.OrderStatusValidationFailed
		}
		if to == from {
			event = entities.OrderEventRevalidated
		}

		patch := entities.OrderPatch{
			DictationText: entities.Set(in.DictationText),
			UpdatedBy:     entities.Set(in.Caller.UserID),
		}
		if to != from {
			patch.Status = entities.Set(to)
		}
		if in.Result != nil {
			patch.FinalValidationStatus = entities.Set(in.Result.ValidationStatus)
			patch.FinalComplianceScore = entities.Set(in.Result.ComplianceScore)
		}
		if err := uow.Orders().Apply(ctx, order.ID, patch); err != nil {
			return err
		}

		details := "provider output could not be parsed"
		if in.Result != nil {
			details = fmt.Sprintf("%s (score %.0f)", in.Result.ValidationStatus, in.Result.ComplianceScore)
		}
		if err := uow.History().Append(ctx, &entities.OrderHistory{
			OrderID:        order.ID,
			UserID:         in.Caller.UserID,
			EventType:      event,
			PreviousStatus: from,
			NewStatus:      to,
			Details:        details,
		}); err != nil {
			return err
		}
		events = append(events, committedEvent{order.ID, order.ReferringOrganizationID, event, from, to})

		orderID, status = order.ID, to
		return nil
	})
	if err != nil {
		return 0, "", err
	}

	for _, e := range events {
		s.committed(ctx, in.Caller, e)
	}
	return orderID, status, nil
}

// Finalize signs a draft or validated order and hands it to admin staff
func (s *OrderLifecycleService) Finalize(ctx context.Context, caller Caller, orderID int64, req FinalizeRequest) (*TransitionResult, error) {
	var ev committedEvent

	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow repositories.UnitOfWork) error {
		order, err := uow.Orders().LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.ReferringOrganizationID != caller.OrganizationID {
			return unauthorized(orderID)
		}
		if !order.Status.IsFinalizable() {
			return apperrors.NewInvalidStateError("finalize", string(order.Status))
		}

		var missing []string
		if strings.TrimSpace(req.FinalCPTCode) == "" {
			missing = append(missing, "finalCPTCode")
		}
		if len(nonBlank(req.FinalICD10Codes)) == 0 {
			missing = append(missing, "finalICD10Codes")
		}
		if req.IsTemporaryPatient {
			if req.PatientInfo == nil || strings.TrimSpace(req.PatientInfo.FirstName) == "" {
				missing = append(missing, "patientInfo.firstName")
			}
			if req.PatientInfo == nil || strings.TrimSpace(req.PatientInfo.LastName) == "" {
				missing = append(missing, "patientInfo.lastName")
			}
		} else if order.PatientID == nil && (req.PatientInfo == nil || req.PatientInfo.ID == nil) {
			missing = append(missing, "patient")
		}
		if len(missing) > 0 {
			return apperrors.NewMissingRequiredDataError("order cannot be finalized", missing)
		}

		var finalStatus entities.ValidationStatus
		if req.FinalValidationStatus != "" {
			parsed, ok := entities.ParseValidationStatus(req.FinalValidationStatus)
			if !ok {
				return apperrors.NewValidationError(fmt.Sprintf("unknown finalValidationStatus %q", req.FinalValidationStatus))
			}
			finalStatus = parsed
		}
		if sc := req.FinalComplianceScore; sc != nil && (*sc < entities.MinComplianceScore || *sc > entities.MaxComplianceScore) {
			return apperrors.NewValidationError("finalComplianceScore must be between 0 and 100")
		}

		overridden := req.Overridden || order.Overridden
		justification := strings.TrimSpace(req.OverrideJustification)
		if justification == "" {
			justification = order.OverrideJustification
		}
		if overridden {
			if justification == "" {
				return apperrors.NewValidationError("overrideJustification is required for an overridden order")
			}
			attempts, err := uow.Attempts().ListByOrder(ctx, orderID)
			if err != nil {
				return err
			}
			if countFailing(attempts, true) == 0 {
				return apperrors.NewValidationError("an override requires at least one failed validation attempt")
			}
		}

		// all checks passed; writes start here
		var patientID int64
		switch {
		case req.IsTemporaryPatient:
			patientID, err = uow.Patients().CreateTemporary(ctx, order.ReferringOrganizationID, *req.PatientInfo)
			if err != nil {
				return err
			}
		case req.PatientInfo != nil && req.PatientInfo.ID != nil:
			p, err := uow.Patients().GetByID(ctx, *req.PatientInfo.ID)
			if err != nil {
				return err
			}
			if p.OrganizationID != order.ReferringOrganizationID {
				return apperrors.NewUnauthorizedError(fmt.Sprintf("patient %d belongs to another organization", p.ID))
			}
			patientID = p.ID
		default:
			patientID = *order.PatientID
		}

		now := s.now().UTC()
		patch := entities.OrderPatch{
			Status:                  entities.Set(entities.OrderStatusPendingAdmin),
			PatientID:               entities.Set(patientID),
			ClinicalIndication:      entities.Set(req.ClinicalIndication),
			FinalCPTCode:            entities.Set(strings.TrimSpace(req.FinalCPTCode)),
			FinalCPTCodeDescription: entities.Set(req.FinalCPTCodeDescription),
			FinalICD10Codes:         entities.Set(nonBlank(req.FinalICD10Codes)),
			FinalICD10Descriptions:  entities.Set(req.FinalICD10CodeDescriptions),
			Overridden:              entities.Set(overridden),
			IsUrgentOverride:        entities.Set(req.IsUrgentOverride),
			SignedByUserID:          entities.Set(caller.UserID),
			SignatureDate:           entities.Set(now),
			UpdatedBy:               entities.Set(caller.UserID),
		}
		if finalStatus != "" {
			patch.FinalValidationStatus = entities.Set(finalStatus)
		}
		if req.FinalComplianceScore != nil {
			patch.FinalComplianceScore = entities.Set(*req.FinalComplianceScore)
		}
		if overridden {
			patch.OverrideJustification = entities.Set(justification)
		}

		if req.SignatureData != "" && s.uploads != nil {
			key, err := s.uploads.ProcessSignature(ctx, orderID, caller.UserID, req.SignatureData)
			if err != nil {
				observability.LoggerFromContext(ctx).Warn().Err(err).Int64("order_id", orderID).Msg("signature upload failed, finalizing without file")
			} else {
				patch.SignatureFileKey = entities.Set(key)
			}
		}

		if err := uow.Orders().Apply(ctx, orderID, patch); err != nil {
			return err
		}

		event := entities.OrderEventSigned
		details := "order signed"
		if overridden {
			event = entities.OrderEventOverride
			details = justification
		}
		if err := uow.History().Append(ctx, &entities.OrderHistory{
			OrderID:        orderID,
			UserID:         caller.UserID,
			EventType:      event,
			PreviousStatus: order.Status,
			NewStatus:      entities.OrderStatusPendingAdmin,
			Details:        details,
		}); err != nil {
			return err
		}

		ev = committedEvent{orderID, order.ReferringOrganizationID, event, order.Status, entities.OrderStatusPendingAdmin}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, caller, ev)
	return &TransitionResult{Success: true, OrderID: orderID, Status: ev.to, Message: "order finalized and sent to admin staff"}, nil
}

// Override unblocks a validation_failed order after repeated failing
// attempts. The most recent attempt is reclassified as override.
func (s *OrderLifecycleService) Override(ctx context.Context, caller Caller, orderID int64, justification string) (*TransitionResult, error) {
	justification = strings.TrimSpace(justification)
	if justification == "" {
		return nil, apperrors.NewValidationError("override justification is required")
	}

	var ev committedEvent
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow repositories.UnitOfWork) error {
		order, err := uow.Orders().LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.ReferringOrganizationID != caller.OrganizationID {
			return unauthorized(orderID)
		}
		if order.Status != entities.OrderStatusValidationFailed {
			return apperrors.NewInvalidStateError("override", string(order.Status))
		}

		attempts, err := uow.Attempts().ListByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		failing := countFailing(attempts, false)
		if failing < s.overrideMinAttempts {
			appErr := apperrors.NewValidationError(fmt.Sprintf(
				"override requires at least %d failed validation attempts, found %d", s.overrideMinAttempts, failing))
			appErr.Details = map[string]string{
				"required": fmt.Sprint(s.overrideMinAttempts),
				"found":    fmt.Sprint(failing),
			}
			return appErr
		}

		latest := attempts[0]
		for _, a := range attempts[1:] {
			if a.AttemptNumber > latest.AttemptNumber {
				latest = a
			}
		}
		if err := uow.Attempts().SetOutcome(ctx, latest.ID, entities.ValidationStatusOverride); err != nil {
			return err
		}

		if err := uow.Orders().Apply(ctx, orderID, entities.OrderPatch{
			Status:                entities.Set(entities.OrderStatusValidated),
			Overridden:            entities.Set(true),
			OverrideJustification: entities.Set(justification),
			FinalValidationStatus: entities.Set(entities.ValidationStatusOverride),
			UpdatedBy:             entities.Set(caller.UserID),
		}); err != nil {
			return err
		}

		if err := uow.History().Append(ctx, &entities.OrderHistory{
			OrderID:        orderID,
			UserID:         caller.UserID,
			EventType:      entities.OrderEventOverride,
			PreviousStatus: order.Status,
			NewStatus:      entities.OrderStatusValidated,
			Details:        justification,
		}); err != nil {
			return err
		}

		ev = committedEvent{orderID, order.ReferringOrganizationID, entities.OrderEventOverride, order.Status, entities.OrderStatusValidated}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, caller, ev)
	return &TransitionResult{Success: true, OrderID: orderID, Status: ev.to, Message: "validation overridden"}, nil
}

// SendToRadiology hands a finalized order to the radiology organization.
// Every missing patient, insurance or order field is reported at once.
func (s *OrderLifecycleService) SendToRadiology(ctx context.Context, caller Caller, orderID int64) (*TransitionResult, error) {
	var ev committedEvent

	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow repositories.UnitOfWork) error {
		order, err := uow.Orders().LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.ReferringOrganizationID != caller.OrganizationID {
			return unauthorized(orderID)
		}
		if order.Status != entities.OrderStatusPendingAdmin {
			return apperrors.NewInvalidStateError("send to radiology", string(order.Status))
		}

		var missing []string
		if order.RadiologyOrganizationID == nil {
			missing = append(missing, "order.radiology_organization_id")
		}
		if order.PatientID == nil {
			missing = append(missing, "patient")
		} else {
			patient, err := uow.Patients().GetByID(ctx, *order.PatientID)
			if err != nil {
				return err
			}
			primary, err := uow.Patients().PrimaryInsurance(ctx, patient.ID)
			if err != nil {
				return err
			}
			missing = append(missing, entities.MissingRadiologyFields(patient, primary)...)
		}
		if len(missing) > 0 {
			return apperrors.NewMissingRequiredDataError("order is missing information required by radiology", missing)
		}

		if err := uow.Orders().Apply(ctx, orderID, entities.OrderPatch{
			Status:    entities.Set(entities.OrderStatusPendingRadiology),
			UpdatedBy: entities.Set(caller.UserID),
		}); err != nil {
			return err
		}
		if err := uow.History().Append(ctx, &entities.OrderHistory{
			OrderID:        orderID,
			UserID:         caller.UserID,
			EventType:      entities.OrderEventSentToRadiology,
			PreviousStatus: order.Status,
			NewStatus:      entities.OrderStatusPendingRadiology,
		}); err != nil {
			return err
		}

		ev = committedEvent{orderID, *order.RadiologyOrganizationID, entities.OrderEventSentToRadiology, order.Status, entities.OrderStatusPendingRadiology}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, caller, ev)
	return &TransitionResult{Success: true, OrderID: orderID, Status: ev.to, Message: "order sent to radiology"}, nil
}

// UpdateOrderStatus is the radiology organization's progress update
func (s *OrderLifecycleService) UpdateOrderStatus(ctx context.Context, caller Caller, orderID int64, newStatus string) (*TransitionResult, error) {
	to, ok := entities.ParseOrderStatus(newStatus)
	if !ok {
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown order status %q", newStatus))
	}

	var ev committedEvent
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow repositories.UnitOfWork) error {
		order, err := uow.Orders().LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.RadiologyOrganizationID == nil || *order.RadiologyOrganizationID != caller.OrganizationID {
			return unauthorized(orderID)
		}
		if !order.Status.IsRadiologyOwned() {
			return apperrors.NewInvalidStateError("update status of", string(order.Status))
		}
		if !order.Status.CanTransitionTo(to) {
			appErr := apperrors.NewInvalidStateError(string(to), string(order.Status))
			appErr.Message = fmt.Sprintf("cannot move order from %s to %s", order.Status, to)
			return appErr
		}

		if err := uow.Orders().Apply(ctx, orderID, entities.OrderPatch{
			Status:    entities.Set(to),
			UpdatedBy: entities.Set(caller.UserID),
		}); err != nil {
			return err
		}

		event := entities.OrderEventStatusChanged
		if to == entities.OrderStatusCancelled {
			event = entities.OrderEventCancelled
		}
		if err := uow.History().Append(ctx, &entities.OrderHistory{
			OrderID:        orderID,
			UserID:         caller.UserID,
			EventType:      event,
			PreviousStatus: order.Status,
			NewStatus:      to,
		}); err != nil {
			return err
		}

		ev = committedEvent{orderID, order.ReferringOrganizationID, event, order.Status, to}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, caller, ev)
	return &TransitionResult{Success: true, OrderID: orderID, Status: to, Message: "order status updated"}, nil
}

// Cancel soft-terminates a non-terminal order. The referring or the radiology
// organization may cancel.
func (s *OrderLifecycleService) Cancel(ctx context.Context, caller Caller, orderID int64, reason string) (*TransitionResult, error) {
	var ev committedEvent

	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow repositories.UnitOfWork) error {
		order, err := uow.Orders().LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if !canAct(order, caller) {
			return unauthorized(orderID)
		}
		if !order.Status.CanTransitionTo(entities.OrderStatusCancelled) {
			return apperrors.NewInvalidStateError("cancel", string(order.Status))
		}

		if err := uow.Orders().Apply(ctx, orderID, entities.OrderPatch{
			Status:    entities.Set(entities.OrderStatusCancelled),
			UpdatedBy: entities.Set(caller.UserID),
		}); err != nil {
			return err
		}
		if err := uow.History().Append(ctx, &entities.OrderHistory{
			OrderID:        orderID,
			UserID:         caller.UserID,
			EventType:      entities.OrderEventCancelled,
			PreviousStatus: order.Status,
			NewStatus:      entities.OrderStatusCancelled,
			Details:        strings.TrimSpace(reason),
		}); err != nil {
			return err
		}

		ev = committedEvent{orderID, order.ReferringOrganizationID, entities.OrderEventCancelled, order.Status, entities.OrderStatusCancelled}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, caller, ev)
	return &TransitionResult{Success: true, OrderID: orderID, Status: ev.to, Message: "order cancelled"}, nil
}

// RequestInformation records an admin request for missing details on a
// pending_admin order. The status does not change.
func (s *OrderLifecycleService) RequestInformation(ctx context.Context, caller Caller, orderID int64, field, message string) (*TransitionResult, error) {
	field, message = strings.TrimSpace(field), strings.TrimSpace(message)
	var missing []string
	if field == "" {
		missing = append(missing, "field")
	}
	if message == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return nil, apperrors.NewMissingRequiredDataError("information request is incomplete", missing)
	}

	var ev committedEvent
	err := s.tx.WithinTx(ctx, func(ctx context.Context, uow repositories.UnitOfWork) error {
		order, err := uow.Orders().LockByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.ReferringOrganizationID != caller.OrganizationID {
			return unauthorized(orderID)
		}
		if order.Status != entities.OrderStatusPendingAdmin {
			return apperrors.NewInvalidStateError("request information on", string(order.Status))
		}

		if err := uow.History().Append(ctx, &entities.OrderHistory{
			OrderID:        orderID,
			UserID:         caller.UserID,
			EventType:      entities.OrderEventInformationRequested,
			PreviousStatus: order.Status,
			NewStatus:      order.Status,
			Details:        field + ": " + message,
		}); err != nil {
			return err
		}

		ev = committedEvent{orderID, order.ReferringOrganizationID, entities.OrderEventInformationRequested, order.Status, order.Status}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.committed(ctx, caller, ev)
	return &TransitionResult{Success: true, OrderID: orderID, Status: ev.to, Message: "information requested"}, nil
}

// History returns the order's audit trail for the referring or radiology organization
func (s *OrderLifecycleService) History(ctx context.Context, caller Caller, orderID int64) ([]*entities.OrderHistory, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !canAct(order, caller) {
		return nil, unauthorized(orderID)
	}

	var history []*entities.OrderHistory
	err = s.tx.WithinTx(ctx, func(ctx context.Context, uow repositories.UnitOfWork) error {
		var err error
		history, err = uow.History().ListByOrder(ctx, orderID)
		return err
	})
	return history, err
}

// CheckValidatable is the non-locking precheck run before a provider call
// for an existing order. The transition re-checks under the row lock.
func (s *OrderLifecycleService) CheckValidatable(ctx context.Context, caller Caller, orderID int64) error {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.ReferringOrganizationID != caller.OrganizationID {
		return unauthorized(orderID)
	}
	if !order.Status.IsValidatable() {
		return apperrors.NewInvalidStateError("validate", string(order.Status))
	}
	return nil
}

// resolveExistingPatient checks a referenced patient id at draft creation
func (s *OrderLifecycleService) resolveExistingPatient(ctx context.Context, uow repositories.UnitOfWork, orgID int64, info *entities.PatientInfo) (*int64, error) {
	if info == nil || info.ID == nil {
		return nil, nil
	}
	p, err := uow.Patients().GetByID(ctx, *info.ID)
	if err != nil {
		return nil, err
	}
	if p.OrganizationID != orgID {
		return nil, apperrors.NewUnauthorizedError(fmt.Sprintf("patient %d belongs to another organization", p.ID))
	}
	id := p.ID
	return &id, nil
}

func (s *OrderLifecycleService) committed(ctx context.Context, caller Caller, e committedEvent) {
	observability.LoggerFromContext(ctx).Info().
		Int64("order_id", e.orderID).
		Str("event", string(e.event)).
		Str("from", string(e.from)).
		Str("to", string(e.to)).
		Int64("user_id", caller.UserID).
		Msg("order transition committed")
	recordTransition(ctx, string(e.event))

	if s.notifier != nil {
		s.notifier.NotifyOrderEvent(ctx, entities.OrderEvent{
			OrderID:        e.orderID,
			EventType:      e.event,
			PreviousStatus: e.from,
			NewStatus:      e.to,
			UserID:         caller.UserID,
			OrganizationID: e.orgID,
		})
	}
}

// countFailing counts failing outcomes; includeOverride also counts attempts
// already reclassified by an override
func countFailing(attempts []*entities.ValidationAttempt, includeOverride bool) int {
	n := 0
	for _, a := range attempts {
		if a.OutcomeStatus.IsFailing() || (includeOverride && a.OutcomeStatus == entities.ValidationStatusOverride) {
			n++
		}
	}
	return n
}

func canAct(order *entities.Order, caller Caller) bool {
	if order.ReferringOrganizationID == caller.OrganizationID {
		return true
	}
	return order.RadiologyOrganizationID != nil && *order.RadiologyOrganizationID == caller.OrganizationID
}

func unauthorized(orderID int64) error {
	return apperrors.NewUnauthorizedError(fmt.Sprintf("not permitted to act on order %d", orderID))
}

func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
