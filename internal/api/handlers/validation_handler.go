package handlers

import (
	"context"
	"net/http"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/application/services"
)

// Validator runs one dictation validation
type Validator interface {
	Validate(ctx context.Context, caller services.Caller, req services.ValidateRequest) (*services.ValidateResponse, error)
}

// ValidationHandler handles dictation validation requests
type ValidationHandler struct {
	validator Validator
}

// NewValidationHandler creates a new validation handler
func NewValidationHandler(validator Validator) *ValidationHandler {
	return &ValidationHandler{validator: validator}
}

// Validate handles POST /api/orders/validate
func (h *ValidationHandler) Validate(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	var req services.ValidateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, r, err)
		return
	}

	resp, err := h.validator.Validate(r.Context(), caller, req)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, resp)
}
