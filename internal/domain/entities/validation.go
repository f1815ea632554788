package entities

import "time"

// ValidationStatus is the closed vocabulary a provider result may carry
type ValidationStatus string

const (
	ValidationStatusAppropriate        ValidationStatus = "appropriate"
	ValidationStatusNeedsClarification ValidationStatus = "needs_clarification"
	ValidationStatusInappropriate      ValidationStatus = "inappropriate"
	ValidationStatusOverride           ValidationStatus = "override"
)

// ParseValidationStatus accepts only exact vocabulary values.
func ParseValidationStatus(s string) (ValidationStatus, bool) {
	switch ValidationStatus(s) {
	case ValidationStatusAppropriate, ValidationStatusNeedsClarification,
		ValidationStatusInappropriate, ValidationStatusOverride:
		return ValidationStatus(s), true
	}
	return "", false
}

// IsFailing reports whether the outcome counts toward the override gate.
func (s ValidationStatus) IsFailing() bool {
	return s == ValidationStatusNeedsClarification || s == ValidationStatusInappropriate
}

const (
	MinComplianceScore = 0
	MaxComplianceScore = 100
)

// ICD10Suggestion is a diagnosis code suggested by the provider
type ICD10Suggestion struct {
	Code        string   `json:"code"`
	Description string   `json:"description"`
	IsPrimary   bool     `json:"isPrimary"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// CPTSuggestion is a procedure code suggested by the provider
type CPTSuggestion struct {
	Code        string   `json:"code"`
	Description string   `json:"description"`
	Confidence  *float64 `json:"confidence,omitempty"`
}

// ValidationResult is the parsed, immutable outcome of one provider response
type ValidationResult struct {
	ValidationStatus    ValidationStatus  `json:"validationStatus"`
	ComplianceScore     float64           `json:"complianceScore"`
	SuggestedICD10Codes []ICD10Suggestion `json:"suggestedICD10Codes"`
	SuggestedCPTCodes   []CPTSuggestion   `json:"suggestedCPTCodes"`
	Feedback            string            `json:"feedback"`
}

// PrimaryICD10 returns the suggestion flagged primary.
func (r *ValidationResult) PrimaryICD10() (ICD10Suggestion, bool) {
	for _, s := range r.SuggestedICD10Codes {
		if s.IsPrimary {
			return s, true
		}
	}
	return ICD10Suggestion{}, false
}

// ICD10Codes returns the suggested diagnosis codes in order.
func (r *ValidationResult) ICD10Codes() []string {
	codes := make([]string, 0, len(r.SuggestedICD10Codes))
	for _, s := range r.SuggestedICD10Codes {
		codes = append(codes, s.Code)
	}
	return codes
}

// CPTCodes returns the suggested procedure codes in order.
func (r *ValidationResult) CPTCodes() []string {
	codes := make([]string, 0, len(r.SuggestedCPTCodes))
	for _, s := range r.SuggestedCPTCodes {
		codes = append(codes, s.Code)
	}
	return codes
}

// LLMResponse is the normalized envelope returned by a provider adapter
type LLMResponse struct {
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	Content          string `json:"content"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	LatencyMs        int64  `json:"latency_ms"`
}

// ProviderCall records one adapter attempt inside a gateway invocation,
// successful or not.
type ProviderCall struct {
	Provider         string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	LatencyMs        int64
	Err              error
}

// Succeeded reports whether the adapter returned usable content.
func (c ProviderCall) Succeeded() bool {
	return c.Err == nil
}

// Invocation is the full record of a gateway call
type Invocation struct {
	Response *LLMResponse
	Calls    []ProviderCall
}

// ValidationAttempt is one append-only validation call against an order
type ValidationAttempt struct {
	ID                  int64            `json:"id" db:"id"`
	OrderID             *int64           `json:"orderId,omitempty" db:"order_id"`
	AttemptNumber       int              `json:"attemptNumber" db:"attempt_number"`
	InputText           string           `json:"validationInputText" db:"validation_input_text"`
	OutcomeStatus       ValidationStatus `json:"validationOutcome" db:"validation_outcome"`
	GeneratedICD10Codes []string         `json:"generatedIcd10Codes" db:"generated_icd10_codes"`
	GeneratedCPTCodes   []string         `json:"generatedCptCodes" db:"generated_cpt_codes"`
	FeedbackText        string           `json:"generatedFeedbackText" db:"generated_feedback_text"`
	ComplianceScore     float64          `json:"generatedComplianceScore" db:"generated_compliance_score"`
	UserID              int64            `json:"userId" db:"user_id"`
	CreatedAt           time.Time        `json:"createdAt" db:"created_at"`
}

// LLMUsageLog is the per-adapter cost and latency record
type LLMUsageLog struct {
	ID               int64     `db:"id"`
	OrderID          *int64    `db:"order_id"`
	UserID           int64     `db:"user_id"`
	Provider         string    `db:"provider"`
	Model            string    `db:"model"`
	PromptTokens     int       `db:"prompt_tokens"`
	CompletionTokens int       `db:"completion_tokens"`
	TotalTokens      int       `db:"total_tokens"`
	LatencyMs        int64     `db:"latency_ms"`
	Status           string    `db:"status"`
	ErrorMessage     string    `db:"error_message"`
	CreatedAt        time.Time `db:"created_at"`
}

// PromptTemplate is a versioned validation prompt
type PromptTemplate struct {
	ID        int64     `json:"id" db:"id" yaml:"id"`
	Name      string    `json:"name" db:"name" yaml:"name"`
	Version   int       `json:"version" db:"version" yaml:"version"`
	Content   string    `json:"content" db:"content" yaml:"content"`
	WordLimit int       `json:"word_limit" db:"word_limit" yaml:"word_limit"`
	Active    bool      `json:"active" db:"active" yaml:"active"`
	CreatedAt time.Time `json:"created_at" db:"created_at" yaml:"-"`
}

// ReferenceCode is an ICD-10 or CPT row used to ground the prompt
type ReferenceCode struct {
	System      string `json:"system" db:"system"` // "ICD-10" or "CPT"
	Code        string `json:"code" db:"code"`
	Description string `json:"description" db:"description"`
	Modality    string `json:"modality,omitempty" db:"modality"`
	BodyPart    string `json:"body_part,omitempty" db:"body_part"`
}

const (
	CodeSystemICD10 = "ICD-10"
	CodeSystemCPT   = "CPT"
)
