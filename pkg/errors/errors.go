package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a referenced order, patient or organization is absent
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a malformed request payload
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConflict indicates a conflict with existing data
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeUnauthorized indicates the caller may not act on the resource
	ErrorTypeUnauthorized ErrorType = "UNAUTHORIZED"

	// ErrorTypeInvalidState indicates an illegal lifecycle transition
	ErrorTypeInvalidState ErrorType = "INVALID_STATE"

	// ErrorTypeMissingRequiredData indicates required fields are absent; all are listed in Fields
	ErrorTypeMissingRequiredData ErrorType = "MISSING_REQUIRED_DATA"

	// ErrorTypeTemplateMissing indicates no active prompt template is configured
	ErrorTypeTemplateMissing ErrorType = "TEMPLATE_MISSING"

	// ErrorTypeMalformedLLMOutput indicates provider output could not be parsed into a result
	ErrorTypeMalformedLLMOutput ErrorType = "MALFORMED_LLM_OUTPUT"

	// ErrorTypeAllProvidersExhausted indicates every configured LLM provider failed
	ErrorTypeAllProvidersExhausted ErrorType = "ALL_PROVIDERS_EXHAUSTED"

	// ErrorTypePersistenceFailure indicates a rolled back transaction or failed query
	ErrorTypePersistenceFailure ErrorType = "PERSISTENCE_FAILURE"

	// ErrorTypeInternal indicates an internal server error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates an error from external service
	ErrorTypeExternal ErrorType = "EXTERNAL"
)

// ValidationServiceUnavailable is the only text callers see when the provider chain is exhausted.
const ValidationServiceUnavailable = "validation service unavailable"

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	// Fields lists every missing or invalid field for MISSING_REQUIRED_DATA.
	Fields []string
	// Details carries structured context such as attempted and actual status.
	Details map[string]string
}

// Error implements the error interface
func (e *AppError) Error() string {
	msg := e.Message
	if len(e.Fields) > 0 {
		msg = fmt.Sprintf("%s [%s]", msg, strings.Join(e.Fields, ", "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Message: message,
	}
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeUnauthorized,
		Message: message,
	}
}

// NewInvalidStateError reports a transition attempted from the wrong status.
func NewInvalidStateError(attempted, actual string) *AppError {
	return &AppError{
		Type:    ErrorTypeInvalidState,
		Message: fmt.Sprintf("cannot %s an order in status %s", attempted, actual),
		Details: map[string]string{
			"attempted": attempted,
			"actual":    actual,
		},
	}
}

// NewMissingRequiredDataError reports every missing field at once.
func NewMissingRequiredDataError(message string, fields []string) *AppError {
	return &AppError{
		Type:    ErrorTypeMissingRequiredData,
		Message: message,
		Fields:  fields,
	}
}

// NewTemplateMissingError creates a new template missing error
func NewTemplateMissingError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeTemplateMissing,
		Message: message,
	}
}

// NewMalformedLLMOutputError creates a new malformed output error
func NewMalformedLLMOutputError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeMalformedLLMOutput,
		Message: message,
		Err:     err,
	}
}

// NewAllProvidersExhaustedError keeps provider failures in Err for logs only.
func NewAllProvidersExhaustedError(err error) *AppError {
	return &AppError{
		Type:    ErrorTypeAllProvidersExhausted,
		Message: ValidationServiceUnavailable,
		Err:     err,
	}
}

// NewPersistenceError creates a new persistence failure error
func NewPersistenceError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypePersistenceFailure,
		Message: message,
		Err:     err,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeExternal,
		Message: message,
		Err:     err,
	}
}

// As returns the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsType reports whether err wraps an AppError of the given type.
func IsType(err error, t ErrorType) bool {
	appErr, ok := As(err)
	return ok && appErr.Type == t
}

// Retryable is true only for provider exhaustion; every other type is a data problem.
func Retryable(err error) bool {
	return IsType(err, ErrorTypeAllProvidersExhausted)
}

// HTTPStatus maps an error to the status code the API layer responds with.
func HTTPStatus(err error) int {
	appErr, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch appErr.Type {
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeUnauthorized:
		return http.StatusForbidden
	case ErrorTypeValidation, ErrorTypeInvalidState:
		return http.StatusBadRequest
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeMissingRequiredData:
		return http.StatusUnprocessableEntity
	case ErrorTypeMalformedLLMOutput, ErrorTypeExternal:
		return http.StatusBadGateway
	case ErrorTypeAllProvidersExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the message safe to return to callers.
func PublicMessage(err error) string {
	appErr, ok := As(err)
	if !ok {
		return "internal server error"
	}
	switch appErr.Type {
	case ErrorTypeAllProvidersExhausted:
		return ValidationServiceUnavailable
	case ErrorTypePersistenceFailure, ErrorTypeInternal:
		return "internal server error"
	case ErrorTypeMalformedLLMOutput:
		return "validation service returned an unreadable result"
	}
	return appErr.Message
}
