package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/zatekoja/RadiologyOrderIntake/backend/pkg/errors"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
)

type rawICD10 struct {
	Code        *string  `json:"code"`
	Description string   `json:"description"`
	IsPrimary   bool     `json:"isPrimary"`
	Confidence  *float64 `json:"confidence"`
}

type rawCPT struct {
	Code        *string  `json:"code"`
	Description string   `json:"description"`
	Confidence  *float64 `json:"confidence"`
}

type rawResult struct {
	ValidationStatus    *string    `json:"validationStatus"`
	ComplianceScore     *float64   `json:"complianceScore"`
	Feedback            *string    `json:"feedback"`
	SuggestedICD10Codes []rawICD10 `json:"suggestedICD10Codes"`
	SuggestedCPTCodes   []rawCPT   `json:"suggestedCPTCodes"`
}

// ParseResponse turns raw provider content into a ValidationResult. Anything
// that does not satisfy the schema is a MALFORMED_LLM_OUTPUT error; results
// are never repaired.
func ParseResponse(content string) (*entities.ValidationResult, error) {
	payload := extractJSON(content)
	if payload == "" {
		return nil, malformed("no JSON object in provider response", nil)
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, malformed("provider response is not valid JSON", err)
	}

	if raw.ValidationStatus == nil {
		return nil, malformed("validationStatus is missing", nil)
	}
	status, ok := entities.ParseValidationStatus(*raw.ValidationStatus)
	if !ok || status == entities.ValidationStatusOverride {
		return nil, malformed(fmt.Sprintf("validationStatus %q is not recognised", *raw.ValidationStatus), nil)
	}

	if raw.ComplianceScore == nil {
		return nil, malformed("complianceScore is missing", nil)
	}
	score := *raw.ComplianceScore
	if score < entities.MinComplianceScore || score > entities.MaxComplianceScore {
		return nil, malformed(fmt.Sprintf("complianceScore %v is out of range", score), nil)
	}

	if raw.Feedback == nil {
		return nil, malformed("feedback is missing", nil)
	}

	if len(raw.SuggestedICD10Codes) == 0 {
		return nil, malformed("suggestedICD10Codes is empty", nil)
	}
	if len(raw.SuggestedCPTCodes) == 0 {
		return nil, malformed("suggestedCPTCodes is empty", nil)
	}

	result := &entities.ValidationResult{
		ValidationStatus:    status,
		ComplianceScore:     score,
		Feedback:            strings.TrimSpace(*raw.Feedback),
		SuggestedICD10Codes: make([]entities.ICD10Suggestion, 0, len(raw.SuggestedICD10Codes)),
		SuggestedCPTCodes:   make([]entities.CPTSuggestion, 0, len(raw.SuggestedCPTCodes)),
	}

	primaries := 0
	for i, c := range raw.SuggestedICD10Codes {
		if c.Code == nil || strings.TrimSpace(*c.Code) == "" {
			return nil, malformed(fmt.Sprintf("suggestedICD10Codes[%d] has no code", i), nil)
		}
		if c.IsPrimary {
			primaries++
		}
		result.SuggestedICD10Codes = append(result.SuggestedICD10Codes, entities.ICD10Suggestion{
			Code:        strings.ToUpper(strings.TrimSpace(*c.Code)),
			Description: strings.TrimSpace(c.Description),
			IsPrimary:   c.IsPrimary,
			Confidence:  c.Confidence,
		})
	}
	if primaries != 1 {
		return nil, malformed(fmt.Sprintf("expected exactly one primary ICD-10 code, got %d", primaries), nil)
	}

	for i, c := range raw.SuggestedCPTCodes {
		if c.Code == nil || strings.TrimSpace(*c.Code) == "" {
			return nil, malformed(fmt.Sprintf("suggestedCPTCodes[%d] has no code", i), nil)
		}
		result.SuggestedCPTCodes = append(result.SuggestedCPTCodes, entities.CPTSuggestion{
			Code:        strings.TrimSpace(*c.Code),
			Description: strings.TrimSpace(c.Description),
			Confidence:  c.Confidence,
		})
	}

	return result, nil
}

// extractJSON strips markdown fences and returns the outermost object.
func extractJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	start := strings.IndexByte(trimmed, '{')
	end := strings.LastIndexByte(trimmed, '}')
	if start < 0 || end <= start {
		return ""
	}
	return trimmed[start : end+1]
}

func malformed(msg string, err error) error {
	return apperrors.NewMalformedLLMOutputError(msg, err)
}
