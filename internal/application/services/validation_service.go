package services

import (
	"context"
	"strings"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/providers"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/repositories"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/infrastructure/observability"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/validation"
	apperrors "github.com/zatekoja/RadiologyOrderIntake/backend/pkg/errors"
)

// ReferenceContextRetriever builds prompt reference context from keywords
type ReferenceContextRetriever interface {
	Retrieve(ctx context.Context, keywords []string) (string, error)
}

// ValidateRequest is one validation call
type ValidateRequest struct {
	DictationText           string                `json:"dictationText"`
	PatientInfo             *entities.PatientInfo `json:"patientInfo"`
	OrderID                 *int64                `json:"orderId,omitempty"`
	IsOverrideValidation    bool                  `json:"isOverrideValidation"`
	RadiologyOrganizationID *int64                `json:"radiologyOrganizationId,omitempty"`
	// Stateless runs the pipeline without creating or moving an order
	Stateless bool `json:"-"`
}

// ValidateResponse is returned to the caller on a parsed result
type ValidateResponse struct {
	Success          bool                       `json:"success"`
	OrderID          int64                      `json:"orderId"`
	OrderStatus      entities.OrderStatus       `json:"orderStatus,omitempty"`
	AttemptNumber    int                        `json:"attemptNumber,omitempty"`
	ValidationResult *entities.ValidationResult `json:"validationResult"`
}

// ValidationService runs sanitize, keywords, context, prompt, gateway and
// parse, then hands the outcome to the order state machine
type ValidationService struct {
	gateway   providers.LLMGateway
	templates repositories.TemplateRepository
	refs      ReferenceContextRetriever
	lifecycle *OrderLifecycleService
	tracker   *AttemptTracker
	wordLimit int
}

// NewValidationService creates a new validation service. lifecycle is
// required unless every request is stateless; refs may be nil.
func NewValidationService(
	gateway providers.LLMGateway,
	templates repositories.TemplateRepository,
	refs ReferenceContextRetriever,
	lifecycle *OrderLifecycleService,
	tracker *AttemptTracker,
	wordLimit int,
) *ValidationService {
	return &ValidationService{
		gateway:   gateway,
		templates: templates,
		refs:      refs,
		lifecycle: lifecycle,
		tracker:   tracker,
		wordLimit: wordLimit,
	}
}

// Prompt runs the pipeline up to the rendered prompt. It never calls a provider.
func (s *ValidationService) Prompt(ctx context.Context, dictation string, isOverride bool) (string, error) {
	return s.render(ctx, validation.Sanitize(dictation), isOverride)
}

func (s *ValidationService) render(ctx context.Context, sanitized string, isOverride bool) (string, error) {
	keywords := validation.ExtractKeywords(sanitized)

	refContext := ""
	if s.refs != nil {
		var err error
		refContext, err = s.refs.Retrieve(ctx, keywords)
		if err != nil {
			observability.LoggerFromContext(ctx).Warn().Err(err).Int("keywords", len(keywords)).Msg("reference context unavailable, prompting without it")
			refContext = ""
		}
	}

	tmpl, err := s.templates.GetActive(ctx)
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			return "", apperrors.NewTemplateMissingError("no active validation prompt template")
		}
		return "", err
	}

	limit := s.wordLimit
	if tmpl.WordLimit > 0 {
		limit = tmpl.WordLimit
	}
	return validation.BuildPrompt(tmpl, validation.PromptInput{
		SanitizedText:    sanitized,
		ReferenceContext: refContext,
		WordLimit:        limit,
		IsOverride:       isOverride,
	})
}

// Validate runs one validation. If ctx is cancelled during the provider
// call nothing is written. Attempt and usage writes never fail the call.
func (s *ValidationService) Validate(ctx context.Context, caller Caller, req ValidateRequest) (*ValidateResponse, error) {
	if strings.TrimSpace(req.DictationText) == "" {
		return nil, apperrors.NewMissingRequiredDataError("dictation is required", []string{"dictationText"})
	}
	stateless := req.Stateless || s.lifecycle == nil
	if req.OrderID != nil && !stateless {
		if err := s.lifecycle.CheckValidatable(ctx, caller, *req.OrderID); err != nil {
			return nil, err
		}
	}

	logger := observability.LoggerFromContext(ctx)
	sanitized := validation.Sanitize(req.DictationText)
	prompt, err := s.render(ctx, sanitized, req.IsOverrideValidation)
	if err != nil {
		return nil, err
	}

	inv, err := s.gateway.Invoke(ctx, prompt)
	if ctx.Err() != nil {
		logger.Info().Err(ctx.Err()).Msg("validation cancelled during provider call; nothing recorded")
		return nil, ctx.Err()
	}
	if err != nil {
		if inv != nil {
			_ = s.recordUsage(ctx, orderIDFor(req, stateless), caller.UserID, inv.Calls)
		}
		logger.Error().Err(err).Int("sanitized_length", len(sanitized)).Msg("validation provider chain failed")
		return nil, err
	}

	result, parseErr := validation.ParseResponse(inv.Response.Content)
	if parseErr != nil {
		logger.Warn().Err(parseErr).Str("provider", inv.Response.Provider).Msg("provider output rejected")
		recordValidation(ctx, "malformed")
	}

	if stateless {
		_ = s.recordUsage(ctx, nil, caller.UserID, inv.Calls)
		if parseErr != nil {
			return nil, parseErr
		}
		attempt := newAttempt(nil, sanitized, result, caller.UserID)
		_ = s.recordAttempt(ctx, attempt)
		recordValidation(ctx, string(result.ValidationStatus))
		return &ValidateResponse{
			Success:          true,
			AttemptNumber:    attempt.AttemptNumber,
			ValidationResult: result,
		}, nil
	}

	// without an order there is nothing to fail, and a draft created here
	// would never reach the caller
	if parseErr != nil && req.OrderID == nil {
		_ = s.recordUsage(ctx, nil, caller.UserID, inv.Calls)
		return nil, parseErr
	}

	orderID, status, err := s.lifecycle.ApplyValidationOutcome(ctx, ValidationOutcome{
		Caller:                  caller,
		OrderID:                 req.OrderID,
		DictationText:           req.DictationText,
		PatientInfo:             req.PatientInfo,
		RadiologyOrganizationID: req.RadiologyOrganizationID,
		Result:                  result,
	})
	if err != nil {
		_ = s.recordUsage(ctx, req.OrderID, caller.UserID, inv.Calls)
		return nil, err
	}
	_ = s.recordUsage(ctx, &orderID, caller.UserID, inv.Calls)
	if parseErr != nil {
		return nil, parseErr
	}

	attempt := newAttempt(&orderID, sanitized, result, caller.UserID)
	_ = s.recordAttempt(ctx, attempt)

	recordValidation(ctx, string(result.ValidationStatus))
	logger.Info().
		Int64("order_id", orderID).
		Str("outcome", string(result.ValidationStatus)).
		Int("attempt_number", attempt.AttemptNumber).
		Str("provider", inv.Response.Provider).
		Msg("validation completed")

	return &ValidateResponse{
		Success:          true,
		OrderID:          orderID,
		OrderStatus:      status,
		AttemptNumber:    attempt.AttemptNumber,
		ValidationResult: result,
	}, nil
}

func (s *ValidationService) recordAttempt(ctx context.Context, attempt *entities.ValidationAttempt) error {
	if s.tracker == nil {
		return nil
	}
	return s.tracker.Record(ctx, attempt)
}

func (s *ValidationService) recordUsage(ctx context.Context, orderID *int64, userID int64, calls []entities.ProviderCall) error {
	if s.tracker == nil {
		return nil
	}
	return s.tracker.RecordUsage(ctx, orderID, userID, calls)
}

func newAttempt(orderID *int64, sanitized string, result *entities.ValidationResult, userID int64) *entities.ValidationAttempt {
	return &entities.ValidationAttempt{
		OrderID:             orderID,
		InputText:           sanitized,
		OutcomeStatus:       result.ValidationStatus,
		GeneratedICD10Codes: result.ICD10Codes(),
		GeneratedCPTCodes:   result.CPTCodes(),
		FeedbackText:        result.Feedback,
		ComplianceScore:     result.ComplianceScore,
		UserID:              userID,
	}
}

func orderIDFor(req ValidateRequest, stateless bool) *int64 {
	if stateless {
		return nil
	}
	return req.OrderID
}
