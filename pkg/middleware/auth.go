package middleware

import (
	"net/http"
	"strings"

	"github.com/danharap/TaskManager-Backend/pkg/auth"
	"github.com/danharap/TaskManager-Backend/pkg/contextkeys"
	"github.com/danharap/TaskManager-Backend/pkg/httputil"
	"github.com/danharap/TaskManager-Backend/pkg/observability"
)

// TokenValidator turns a bearer token into the caller's identity.
// *auth.TokenIssuer implements it.
type TokenValidator interface {
	Validate(token string) (auth.Principal, error)
}

// AuthMiddleware is the authorization gate: it requires a valid bearer token
// and places the caller's auth.Principal in the request context
type AuthMiddleware struct {
	validator TokenValidator
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{validator: validator}
}

// Handler wraps an HTTP handler with authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorizedResponse(w, "Missing authorization header.")
			return
		}

		// Format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			unauthorizedResponse(w, "Invalid authorization header format.")
			return
		}

		principal, err := m.validator.Validate(strings.TrimSpace(parts[1]))
		if err != nil {
			observability.GetLogger(r.Context()).WithError(err).Debug("rejected bearer token")
			unauthorizedResponse(w, "Invalid or expired token.")
			return
		}

		ctx := contextkeys.WithPrincipal(r.Context(), principal)
		ctx = observability.WithLogger(ctx, observability.GetLogger(ctx).WithField("user_id", principal.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unauthorizedResponse(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer`)
	httputil.WriteUnauthorized(w, message)
}

// GetPrincipal returns the authenticated caller set by AuthMiddleware
func GetPrincipal(r *http.Request) (auth.Principal, bool) {
	principal, ok := r.Context().Value(contextkeys.PrincipalKey).(auth.Principal)
	return principal, ok
}

// RequireRole rejects callers whose role is not role with 403. It must run
// inside AuthMiddleware.
func RequireRole(role auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := GetPrincipal(r)
			if !ok {
				unauthorizedResponse(w, "Authentication required.")
				return
			}

			if principal.Role != role {
				httputil.WriteForbidden(w, "Insufficient role permissions.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
