package handlers

import (
	"context"
	"net/http"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/application/services"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
)

// OrderLifecycle is the order state machine used by the handler
type OrderLifecycle interface {
	Finalize(ctx context.Context, caller services.Caller, orderID int64, req services.FinalizeRequest) (*services.TransitionResult, error)
	Override(ctx context.Context, caller services.Caller, orderID int64, justification string) (*services.TransitionResult, error)
	SendToRadiology(ctx context.Context, caller services.Caller, orderID int64) (*services.TransitionResult, error)
	RequestInformation(ctx context.Context, caller services.Caller, orderID int64, field, message string) (*services.TransitionResult, error)
	UpdateOrderStatus(ctx context.Context, caller services.Caller, orderID int64, newStatus string) (*services.TransitionResult, error)
	Cancel(ctx context.Context, caller services.Caller, orderID int64, reason string) (*services.TransitionResult, error)
	History(ctx context.Context, caller services.Caller, orderID int64) ([]*entities.OrderHistory, error)
}

// OrderHandler handles order lifecycle requests from physicians, admin
// staff and radiology organizations
type OrderHandler struct {
	lifecycle OrderLifecycle
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(lifecycle OrderLifecycle) *OrderHandler {
	return &OrderHandler{lifecycle: lifecycle}
}

type overrideRequest struct {
	Justification string `json:"justification"`
}

type requestInfoRequest struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// transition resolves the caller and order id, decodes body if non-nil,
// runs fn and writes the result
func (h *OrderHandler) transition(w http.ResponseWriter, r *http.Request, body interface{},
	fn func(ctx context.Context, caller services.Caller, orderID int64) (*services.TransitionResult, error)) {
	caller, err := callerFrom(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	orderID, err := orderIDParam(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if body != nil {
		if err := decodeJSON(w, r, body); err != nil {
			respondWithError(w, r, err)
			return
		}
	}

	res, err := fn(r.Context(), caller, orderID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

// Finalize handles POST /api/orders/{id}/finalize
func (h *OrderHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	var req services.FinalizeRequest
	h.transition(w, r, &req, func(ctx context.Context, caller services.Caller, id int64) (*services.TransitionResult, error) {
		return h.lifecycle.Finalize(ctx, caller, id, req)
	})
}

// Override handles POST /api/orders/{id}/override
func (h *OrderHandler) Override(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	h.transition(w, r, &req, func(ctx context.Context, caller services.Caller, id int64) (*services.TransitionResult, error) {
		return h.lifecycle.Override(ctx, caller, id, req.Justification)
	})
}

// Cancel handles POST /api/orders/{id}/cancel
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	h.transition(w, r, &req, func(ctx context.Context, caller services.Caller, id int64) (*services.TransitionResult, error) {
		return h.lifecycle.Cancel(ctx, caller, id, req.Reason)
	})
}

// SendToRadiology handles POST /api/admin/orders/{id}/send-to-radiology
func (h *OrderHandler) SendToRadiology(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, nil, h.lifecycle.SendToRadiology)
}

// RequestInformation handles POST /api/admin/orders/{id}/request-info
func (h *OrderHandler) RequestInformation(w http.ResponseWriter, r *http.Request) {
	var req requestInfoRequest
	h.transition(w, r, &req, func(ctx context.Context, caller services.Caller, id int64) (*services.TransitionResult, error) {
		return h.lifecycle.RequestInformation(ctx, caller, id, req.Field, req.Message)
	})
}

// UpdateStatus handles POST /api/radiology/orders/{id}/status
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	h.transition(w, r, &req, func(ctx context.Context, caller services.Caller, id int64) (*services.TransitionResult, error) {
		return h.lifecycle.UpdateOrderStatus(ctx, caller, id, req.Status)
	})
}

// History handles GET /api/orders/{id}/history
func (h *OrderHandler) History(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFrom(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	orderID, err := orderIDParam(r)
	if err != nil {
		respondWithError(w, r, err)
		return
	}

	history, err := h.lifecycle.History(r.Context(), caller, orderID)
	if err != nil {
		respondWithError(w, r, err)
		return
	}
	if history == nil {
		history = []*entities.OrderHistory{}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"history": history,
		"count":   len(history),
	})
}
