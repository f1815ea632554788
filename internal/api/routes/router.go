package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/api/handlers"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/api/middleware"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/infrastructure/observability"
)

// HealthCheck reports whether one dependency is reachable
type HealthCheck func(ctx context.Context) error

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	validationHandler *handlers.ValidationHandler
	orderHandler      *handlers.OrderHandler

	checks         map[string]HealthCheck
	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router. checks are run by GET /health.
func NewRouter(
	validationHandler *handlers.ValidationHandler,
	orderHandler *handlers.OrderHandler,
	checks map[string]HealthCheck,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:               http.NewServeMux(),
		validationHandler: validationHandler,
		orderHandler:      orderHandler,
		checks:            checks,
		allowedOrigins:    allowedOrigins,
		metrics:           metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", r.health)

	// every /api route requires caller identity
	api := func(pattern string, h http.HandlerFunc) {
		r.mux.Handle(pattern, middleware.Identity(h))
	}

	// Physician endpoints
	api("POST /api/orders/validate", r.validationHandler.Validate)
	api("POST /api/orders/{id}/finalize", r.orderHandler.Finalize)
	api("POST /api/orders/{id}/override", r.orderHandler.Override)
	api("POST /api/orders/{id}/cancel", r.orderHandler.Cancel)
	api("GET /api/orders/{id}/history", r.orderHandler.History)

	// Admin staff endpoints
	api("POST /api/admin/orders/{id}/send-to-radiology", r.orderHandler.SendToRadiology)
	api("POST /api/admin/orders/{id}/request-info", r.orderHandler.RequestInformation)

	// Radiology organization endpoints
	api("POST /api/radiology/orders/{id}/status", r.orderHandler.UpdateStatus)

	// last wrapper runs first; CORS stays outermost so preflights skip identity
	var handler http.Handler = r.mux
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.CORS(r.allowedOrigins)(handler)

	return handler
}

func (r *Router) health(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(r.checks))
	for name, check := range r.checks {
		if err := check(ctx); err != nil {
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": overall,
		"checks": results,
	})
}
