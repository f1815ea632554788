package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsType_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("finalize: %w", NewUnauthorizedError("organization mismatch"))

	assert.True(t, IsType(err, ErrorTypeUnauthorized))
	assert.False(t, IsType(err, ErrorTypeNotFound))
	assert.False(t, IsType(stderrors.New("plain"), ErrorTypeNotFound))
}

func TestRetryable_OnlyProviderExhaustion(t *testing.T) {
	assert.True(t, Retryable(NewAllProvidersExhaustedError(stderrors.New("timeout"))))

	for _, err := range []error{
		NewNotFoundError("order not found"),
		NewMalformedLLMOutputError("bad json", nil),
		NewTemplateMissingError("no template"),
		NewPersistenceError("rollback", stderrors.New("tx")),
		NewInvalidStateError("send_to_radiology", "draft"),
	} {
		assert.False(t, Retryable(err), err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NewNotFoundError("x"), http.StatusNotFound},
		{NewUnauthorizedError("x"), http.StatusForbidden},
		{NewInvalidStateError("finalize", "completed"), http.StatusBadRequest},
		{NewMissingRequiredDataError("x", []string{"a"}), http.StatusUnprocessableEntity},
		{NewAllProvidersExhaustedError(nil), http.StatusServiceUnavailable},
		{stderrors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestPublicMessage_HidesProviderText(t *testing.T) {
	err := NewAllProvidersExhaustedError(stderrors.New("anthropic: 529 overloaded_error"))

	assert.Equal(t, ValidationServiceUnavailable, PublicMessage(err))
	assert.NotContains(t, PublicMessage(err), "anthropic")
}

func TestInvalidState_CarriesStatuses(t *testing.T) {
	err := NewInvalidStateError("send_to_radiology", "pending_radiology")

	assert.Equal(t, "send_to_radiology", err.Details["attempted"])
	assert.Equal(t, "pending_radiology", err.Details["actual"])
}

func TestMissingRequiredData_ListsAllFields(t *testing.T) {
	err := NewMissingRequiredDataError("patient record incomplete", []string{"patient.phone_number", "insurance.policy_number"})

	assert.Contains(t, err.Error(), "patient.phone_number")
	assert.Contains(t, err.Error(), "insurance.policy_number")
}
