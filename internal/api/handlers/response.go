package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/api/middleware"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/application/services"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/RadiologyOrderIntake/backend/pkg/errors"
)

// errorBody is the wire shape of every error response
type errorBody struct {
	Type    apperrors.ErrorType `json:"type"`
	Message string              `json:"message"`
	Fields  []string            `json:"fields,omitempty"`
	Details map[string]string   `json:"details,omitempty"`
}

const maxBodyBytes = 1 << 20

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondWithError maps err onto a status and a body that carries no
// provider or database detail
func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	body := errorBody{Type: apperrors.ErrorTypeInternal, Message: apperrors.PublicMessage(err)}
	if appErr, ok := apperrors.As(err); ok {
		body.Type = appErr.Type
		body.Fields = appErr.Fields
		body.Details = appErr.Details
	}
	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error().Err(err).Str("type", string(body.Type)).Msg("request failed")
	}
	if apperrors.Retryable(err) {
		w.Header().Set("Retry-After", "5")
	}
	respondWithJSON(w, status, map[string]errorBody{"error": body})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return apperrors.NewValidationError("invalid request payload")
	}
	return nil
}

func orderIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("order id must be a positive integer")
	}
	return id, nil
}

func callerFrom(r *http.Request) (services.Caller, error) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok {
		return services.Caller{}, apperrors.NewUnauthorizedError("missing caller identity")
	}
	return caller, nil
}
