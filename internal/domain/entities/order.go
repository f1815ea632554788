package entities

import "time"

// Order represents a radiology order from a referring organization
type Order struct {
	ID                      int64       `json:"id" db:"id"`
	ReferringOrganizationID int64       `json:"referring_organization_id" db:"referring_organization_id"`
	RadiologyOrganizationID *int64      `json:"radiology_organization_id,omitempty" db:"radiology_organization_id"`
	PatientID               *int64      `json:"patient_id,omitempty" db:"patient_id"`
	Status                  OrderStatus `json:"status" db:"status"`

	DictationText           string           `json:"dictation_text" db:"dictation_text"`
	ClinicalIndication      string           `json:"clinical_indication,omitempty" db:"clinical_indication"`
	FinalCPTCode            string           `json:"final_cpt_code,omitempty" db:"final_cpt_code"`
	FinalCPTCodeDescription string           `json:"final_cpt_code_description,omitempty" db:"final_cpt_code_description"`
	FinalICD10Codes         []string         `json:"final_icd10_codes,omitempty" db:"final_icd10_codes"`
	FinalICD10Descriptions  []string         `json:"final_icd10_code_descriptions,omitempty" db:"final_icd10_code_descriptions"`
	FinalValidationStatus   ValidationStatus `json:"final_validation_status,omitempty" db:"final_validation_status"`
	FinalComplianceScore    *float64         `json:"final_compliance_score,omitempty" db:"final_compliance_score"`

	Overridden            bool   `json:"overridden" db:"overridden"`
	OverrideJustification string `json:"override_justification,omitempty" db:"override_justification"`
	IsUrgentOverride      bool   `json:"is_urgent_override" db:"is_urgent_override"`

	SignedByUserID   *int64     `json:"signed_by_user_id,omitempty" db:"signed_by_user_id"`
	SignatureDate    *time.Time `json:"signature_date,omitempty" db:"signature_date"`
	SignatureFileKey string     `json:"signature_file_key,omitempty" db:"signature_file_key"`

	CreatedBy int64     `json:"created_by" db:"created_by"`
	UpdatedBy int64     `json:"updated_by" db:"updated_by"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Field is an optional patch value; only fields with Set are written.
type Field[T any] struct {
	Value T
	Set   bool
}

// Set returns a present patch value.
func Set[T any](v T) Field[T] {
	return Field[T]{Value: v, Set: true}
}

// OrderPatch lists every column a lifecycle transition may update.
type OrderPatch struct {
	Status                  Field[OrderStatus]
	PatientID               Field[int64]
	DictationText           Field[string]
	ClinicalIndication      Field[string]
	FinalCPTCode            Field[string]
	FinalCPTCodeDescription Field[string]
	FinalICD10Codes         Field[[]string]
	FinalICD10Descriptions  Field[[]string]
	FinalValidationStatus   Field[ValidationStatus]
	FinalComplianceScore    Field[float64]
	Overridden              Field[bool]
	OverrideJustification   Field[string]
	IsUrgentOverride        Field[bool]
	SignedByUserID          Field[int64]
	SignatureDate           Field[time.Time]
	SignatureFileKey        Field[string]
	UpdatedBy               Field[int64]
}

// IsEmpty reports whether the patch would write nothing.
func (p OrderPatch) IsEmpty() bool {
	return !(p.Status.Set || p.PatientID.Set || p.DictationText.Set || p.ClinicalIndication.Set ||
		p.FinalCPTCode.Set || p.FinalCPTCodeDescription.Set || p.FinalICD10Codes.Set ||
		p.FinalICD10Descriptions.Set || p.FinalValidationStatus.Set || p.FinalComplianceScore.Set ||
		p.Overridden.Set || p.OverrideJustification.Set || p.IsUrgentOverride.Set ||
		p.SignedByUserID.Set || p.SignatureDate.Set || p.SignatureFileKey.Set || p.UpdatedBy.Set)
}

// OrderEventType names an order history row.
type OrderEventType string

const (
	OrderEventCreated              OrderEventType = "created"
	OrderEventValidated            OrderEventType = "validated"
	OrderEventValidationFailed     OrderEventType = "validation_failed"
	OrderEventRevalidated          OrderEventType = "revalidated"
	OrderEventSigned               OrderEventType = "signed"
	OrderEventOverride             OrderEventType = "override"
	OrderEventSentToRadiology      OrderEventType = "sent_to_radiology"
	OrderEventStatusChanged        OrderEventType = "status_changed"
	OrderEventCancelled            OrderEventType = "cancelled"
	OrderEventInformationRequested OrderEventType = "information_requested"
)

// OrderHistory is an append-only audit row for an order
type OrderHistory struct {
	ID             int64          `json:"id" db:"id"`
	OrderID        int64          `json:"order_id" db:"order_id"`
	UserID         int64          `json:"user_id" db:"user_id"`
	EventType      OrderEventType `json:"event_type" db:"event_type"`
	PreviousStatus OrderStatus    `json:"previous_status,omitempty" db:"previous_status"`
	NewStatus      OrderStatus    `json:"new_status,omitempty" db:"new_status"`
	Details        string         `json:"details,omitempty" db:"details"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// OrderEvent is published to notification subscribers after a transition commits
type OrderEvent struct {
	ID             string         `json:"id"`
	OrderID        int64          `json:"order_id"`
	EventType      OrderEventType `json:"event_type"`
	PreviousStatus OrderStatus    `json:"previous_status,omitempty"`
	NewStatus      OrderStatus    `json:"new_status"`
	UserID         int64          `json:"user_id"`
	OrganizationID int64          `json:"organization_id"`
	Timestamp      time.Time      `json:"timestamp"`
}
