package api

import (
	"net/http"

	"github.com/danharap/TaskManager-Backend/pkg/audit"
	"github.com/danharap/TaskManager-Backend/pkg/auth"
	"github.com/danharap/TaskManager-Backend/pkg/httputil"
	"github.com/danharap/TaskManager-Backend/pkg/middleware"
	"github.com/danharap/TaskManager-Backend/pkg/observability"
	"github.com/danharap/TaskManager-Backend/pkg/storage"
)

// guard wraps handlers with the bearer token gate and optional role checks
type guard struct {
	auth *middleware.AuthMiddleware
}

// user requires any authenticated caller
func (g guard) user(fn http.HandlerFunc) http.Handler {
	return g.auth.Handler(fn)
}

// admin requires an authenticated caller with the Admin role
func (g guard) admin(fn http.HandlerFunc) http.Handler {
	return g.auth.Handler(middleware.RequireRole(auth.RoleAdmin)(fn))
}

// principalOrUnauthorized returns the caller placed in the context by the gate
func principalOrUnauthorized(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, ok := middleware.GetPrincipal(r)
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required.")
		return auth.Principal{}, false
	}
	return principal, true
}

// ownerFilter lifts the ownership restriction for admins
func ownerFilter(principal auth.Principal) int64 {
	if principal.IsAdmin() {
		return storage.AnyOwner
	}
	return principal.UserID
}

// writeInternalError logs an unexpected storage fault and answers 500
func writeInternalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	observability.GetLogger(r.Context()).WithError(err).Error(msg)
	httputil.WriteInternalError(w)
}

// recordAudit stamps the caller onto event and writes it to the trail.
// A failing trail is logged and never changes the response.
func recordAudit(trail audit.Logger, r *http.Request, event *audit.Event) {
	if principal, ok := middleware.GetPrincipal(r); ok {
		event.ActorID = audit.Int64(principal.UserID)
	}
	if err := trail.Log(r.Context(), event); err != nil {
		observability.GetLogger(r.Context()).
			WithError(err).
			WithField("event_type", string(event.Type)).
			Warn("failed to record audit event")
	}
}
