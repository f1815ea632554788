package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/application/services"
)

// Identity headers are set by the authenticating proxy in front of the API.
const (
	HeaderUserID = "X-User-ID"
	HeaderOrgID  = "X-Org-ID"
)

type callerKey struct{}

// Identity reads the caller from the identity headers. Requests without a
// valid user and organization are rejected with 401.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, errUser := strconv.ParseInt(r.Header.Get(HeaderUserID), 10, 64)
		orgID, errOrg := strconv.ParseInt(r.Header.Get(HeaderOrgID), 10, 64)
		if errUser != nil || errOrg != nil || userID <= 0 || orgID <= 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"type":"UNAUTHORIZED","message":"missing caller identity"}}`))
			return
		}

		caller := services.Caller{UserID: userID, OrganizationID: orgID}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

// WithCaller stores the caller on ctx
func WithCaller(ctx context.Context, caller services.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller set by Identity
func CallerFromContext(ctx context.Context) (services.Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(services.Caller)
	return caller, ok
}
