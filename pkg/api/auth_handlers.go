package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/danharap/TaskManager-Backend/pkg/audit"
	"github.com/danharap/TaskManager-Backend/pkg/auth"
	"github.com/danharap/TaskManager-Backend/pkg/httputil"
	"github.com/danharap/TaskManager-Backend/pkg/middleware"
	"github.com/danharap/TaskManager-Backend/pkg/observability"
	"github.com/danharap/TaskManager-Backend/pkg/storage"
)

const (
	msgUsernameExists     = "Username already exists."
	msgUserNotFound       = "User not found."
	msgInvalidCredentials = "Invalid username or password."
	msgNewUsernameMissing = "New username is required."
)

// AuthHandlers handles registration, login and account management
type AuthHandlers struct {
	users      storage.UserStore
	issuer     *auth.TokenIssuer
	hasher     PasswordHasher
	metrics    *observability.Metrics
	trail      audit.Logger
	gate       guard
	loginLimit *middleware.RateLimitMiddleware
	regLimit   *middleware.RateLimitMiddleware
}

// PasswordHasher hashes and checks passwords; *auth.PasswordHasher implements it
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, digest string) (ok, needsRehash bool)
	VerifyMissing(ctx context.Context, password string)
}

var _ PasswordHasher = (*auth.PasswordHasher)(nil)

// NewAuthHandlers creates a new auth handlers instance. loginLimit and
// regLimit may be nil.
func NewAuthHandlers(users storage.UserStore, issuer *auth.TokenIssuer, hasher PasswordHasher,
	metrics *observability.Metrics, trail audit.Logger, gate guard,
	loginLimit, regLimit *middleware.RateLimitMiddleware) *AuthHandlers {
	return &AuthHandlers{
		users:      users,
		issuer:     issuer,
		hasher:     hasher,
		metrics:    metrics,
		trail:      trail,
		gate:       gate,
		loginLimit: loginLimit,
		regLimit:   regLimit,
	}
}

// RegisterRoutes registers authentication routes
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	var login http.Handler = http.HandlerFunc(h.login)
	if h.loginLimit != nil {
		login = h.loginLimit.Handler(login)
	}
	var register http.Handler = http.HandlerFunc(h.register)
	if h.regLimit != nil {
		register = h.regLimit.Handler(register)
	}

	router.Handle("/api/auth/register", register).Methods("POST")
	router.Handle("/api/auth/login", login).Methods("POST")

	// Self-service
	router.Handle("/api/auth/username", h.gate.user(h.changeUsername)).Methods("PUT")
	router.Handle("/api/auth/password", h.gate.user(h.changePassword)).Methods("PUT")
	router.Handle("/api/auth/users/me", h.gate.user(h.deleteOwnAccount)).Methods("DELETE")

	// Admin
	router.Handle("/api/auth/admin/users/{id:[0-9]+}/username", h.gate.admin(h.adminChangeUsername)).Methods("PUT")
	router.Handle("/api/auth/users", h.gate.admin(h.listUsers)).Methods("GET")
	router.Handle("/api/auth/users/{id:[0-9]+}", h.gate.admin(h.deleteUser)).Methods("DELETE")
	router.Handle("/api/auth/users/{id:[0-9]+}/role", h.gate.admin(h.updateUserRole)).Methods("PUT")
}

// register handles POST /api/auth/register
func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if req.Username == "" || req.Password == "" {
		httputil.WriteBadRequest(w, "Username and password are required.")
		return
	}

	role := auth.RoleUser
	if strings.TrimSpace(req.Role) != "" {
		parsed, err := auth.ParseRole(req.Role)
		if err != nil {
			httputil.WriteBadRequest(w, "Role must be User or Admin.")
			return
		}
		role = parsed
	}

	exists, err := h.users.UsernameExists(r.Context(), req.Username)
	if err != nil {
		writeInternalError(w, r, err, "failed to check username")
		return
	}
	if exists {
		httputil.WriteBadRequest(w, msgUsernameExists)
		return
	}

	digest, err := h.hasher.Hash(r.Context(), req.Password)
	if err != nil {
		writeInternalError(w, r, err, "failed to hash password")
		return
	}

	user := &auth.User{Username: req.Username, PasswordHash: digest, Role: role}
	if err := h.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrUsernameTaken) {
			httputil.WriteBadRequest(w, msgUsernameExists)
			return
		}
		writeInternalError(w, r, err, "failed to create user")
		return
	}

	h.metrics.UsersRegisteredTotal.Inc()
	observability.GetLogger(r.Context()).
		WithFields(map[string]interface{}{"new_user_id": user.ID, "role": user.Role}).
		Info("user registered")

	event := audit.NewEvent(r, audit.EventRegister, audit.StatusSuccess)
	event.TargetUserID = audit.Int64(user.ID)
	event.Username = user.Username
	event.Metadata = map[string]interface{}{"role": string(user.Role)}
	recordAudit(h.trail, r, event)

	httputil.WriteOK(w, "User registered successfully.")
}

// login handles POST /api/auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.users.GetUserByUsername(r.Context(), req.Username)
	if errors.Is(err, storage.ErrNotFound) {
		h.hasher.VerifyMissing(r.Context(), req.Password)
		h.loginFailed(w, r, req.Username)
		return
	}
	if err != nil {
		writeInternalError(w, r, err, "failed to load user for login")
		return
	}

	ok, needsRehash := h.hasher.Verify(r.Context(), req.Password, user.PasswordHash)
	if !ok {
		h.loginFailed(w, r, req.Username)
		return
	}

	logger := observability.GetLogger(r.Context()).WithField("user_id", user.ID)
	if needsRehash {
		h.upgradeDigest(r, logger, user.ID, req.Password)
	}

	token, err := h.issuer.Issue(user)
	if err != nil {
		writeInternalError(w, r, err, "failed to issue token")
		return
	}

	h.metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	logger.Info("user logged in")

	event := audit.NewEvent(r, audit.EventLogin, audit.StatusSuccess)
	event.ActorID = audit.Int64(user.ID)
	event.Username = user.Username
	recordAudit(h.trail, r, event)

	httputil.WriteSuccess(w, loginResponse{
		Token: token,
		Role:  string(user.Role),
		Name:  user.Username,
	})
}

// loginFailed answers an unknown user and a wrong password identically.
// Callers have already spent one password verification on either path.
func (h *AuthHandlers) loginFailed(w http.ResponseWriter, r *http.Request, username string) {
	h.metrics.LoginAttemptsTotal.WithLabelValues("failure").Inc()

	event := audit.NewEvent(r, audit.EventLoginFailed, audit.StatusFailure)
	event.Username = username
	recordAudit(h.trail, r, event)

	httputil.WriteUnauthorized(w, msgInvalidCredentials)
}

// upgradeDigest replaces a legacy digest after a successful login. Failures
// are logged and do not fail the login.
func (h *AuthHandlers) upgradeDigest(r *http.Request, logger *observability.Logger, userID int64, password string) {
	digest, err := h.hasher.Hash(r.Context(), password)
	if err == nil {
		err = h.users.UpdatePasswordHash(r.Context(), userID, digest)
	}
	if err != nil {
		logger.WithError(err).Warn("failed to upgrade legacy password digest")
		return
	}
	logger.Info("upgraded legacy password digest")
}

// changeUsername handles PUT /api/auth/username
func (h *AuthHandlers) changeUsername(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req changeUsernameRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.users.GetUser(r.Context(), principal.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteNotFoundError(w, msgUserNotFound)
		return
	}
	if err != nil {
		writeInternalError(w, r, err, "failed to load user")
		return
	}

	// ordinal comparison against the stored name
	if user.Username != req.CurrentUsername {
		httputil.WriteBadRequest(w, "Current username is incorrect.")
		return
	}
	if strings.TrimSpace(req.NewUsername) == "" {
		httputil.WriteBadRequest(w, msgNewUsernameMissing)
		return
	}

	if !h.renameUser(w, r, principal.UserID, req.NewUsername, msgUserNotFound) {
		return
	}

	event := audit.NewEvent(r, audit.EventUsernameChange, audit.StatusSuccess)
	event.Username = req.NewUsername
	event.Metadata = map[string]interface{}{"previous_username": user.Username}
	recordAudit(h.trail, r, event)

	httputil.WriteOK(w, "Username updated successfully.")
}

// renameUser checks for collisions and stores the new name. It writes the
// error response and returns false on failure.
func (h *AuthHandlers) renameUser(w http.ResponseWriter, r *http.Request, id int64, username, notFoundMsg string) bool {
	exists, err := h.users.UsernameExists(r.Context(), username)
	if err != nil {
		writeInternalError(w, r, err, "failed to check username")
		return false
	}
	if exists {
		httputil.WriteBadRequest(w, msgUsernameExists)
		return false
	}

	err = h.users.UpdateUsername(r.Context(), id, username)
	switch {
	case errors.Is(err, storage.ErrUsernameTaken):
		httputil.WriteBadRequest(w, msgUsernameExists)
		return false
	case errors.Is(err, storage.ErrNotFound):
		httputil.WriteNotFoundError(w, notFoundMsg)
		return false
	case err != nil:
		writeInternalError(w, r, err, "failed to update username")
		return false
	}
	return true
}

// changePassword handles PUT /api/auth/password
func (h *AuthHandlers) changePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.users.GetUser(r.Context(), principal.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteNotFoundError(w, msgUserNotFound)
		return
	}
	if err != nil {
		writeInternalError(w, r, err, "failed to load user")
		return
	}

	if ok, _ := h.hasher.Verify(r.Context(), req.CurrentPassword, user.PasswordHash); !ok {
		httputil.WriteBadRequest(w, "Current password is incorrect.")
		return
	}
	if req.NewPassword == "" {
		httputil.WriteBadRequest(w, "New password is required.")
		return
	}

	digest, err := h.hasher.Hash(r.Context(), req.NewPassword)
	if err != nil {
		writeInternalError(w, r, err, "failed to hash password")
		return
	}

	err = h.users.UpdatePasswordHash(r.Context(), user.ID, digest)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteNotFoundError(w, msgUserNotFound)
		return
	}
	if err != nil {
		writeInternalError(w, r, err, "failed to update password")
		return
	}

	recordAudit(h.trail, r, audit.NewEvent(r, audit.EventPasswordChange, audit.StatusSuccess))
	httputil.WriteOK(w, "Password updated successfully.")
}

// deleteOwnAccount handles DELETE /api/auth/users/me
func (h *AuthHandlers) deleteOwnAccount(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	err := h.users.DeleteUser(r.Context(), principal.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteNotFoundError(w, msgUserNotFound)
		return
	}
	if err != nil {
		writeInternalError(w, r, err, "failed to delete account")
		return
	}

	observability.GetLogger(r.Context()).Info("account deleted by owner")
	recordAudit(h.trail, r, audit.NewEvent(r, audit.EventAccountDelete, audit.StatusSuccess))
	httputil.WriteOK(w, "Your account and all associated data have been deleted.")
}

// adminChangeUsername handles PUT /api/auth/admin/users/{id}/username
func (h *AuthHandlers) adminChangeUsername(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req changeUsernameRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.NewUsername) == "" {
		httputil.WriteBadRequest(w, msgNewUsernameMissing)
		return
	}

	if !h.renameUser(w, r, id, req.NewUsername, userIDNotFound(id)) {
		return
	}

	event := audit.NewEvent(r, audit.EventAdminUsernameChange, audit.StatusSuccess)
	event.TargetUserID = audit.Int64(id)
	event.Username = req.NewUsername
	recordAudit(h.trail, r, event)

	httputil.WriteOK(w, fmt.Sprintf("Username for user ID %d updated successfully.", id))
}

// listUsers handles GET /api/auth/users
func (h *AuthHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		writeInternalError(w, r, err, "failed to list users")
		return
	}

	httputil.WriteSuccess(w, users)
}

// deleteUser handles DELETE /api/auth/users/{id}
func (h *AuthHandlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	err := h.users.DeleteUser(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteNotFoundError(w, userIDNotFound(id))
		return
	}
	if err != nil {
		writeInternalError(w, r, err, "failed to delete user")
		return
	}

	observability.GetLogger(r.Context()).WithField("deleted_user_id", id).Info("user deleted by admin")

	event := audit.NewEvent(r, audit.EventAdminUserDelete, audit.StatusSuccess)
	event.TargetUserID = audit.Int64(id)
	recordAudit(h.trail, r, event)
	httputil.WriteOK(w, fmt.Sprintf("User with ID %d and their tasks have been deleted.", id))
}

// updateUserRole handles PUT /api/auth/users/{id}/role. The body is a bare
// JSON string such as "Admin".
func (h *AuthHandlers) updateUserRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var newRole string
	if !httputil.ParseJSONOrError(w, r, &newRole) {
		return
	}

	role, err := auth.ParseRole(newRole)
	if err != nil {
		httputil.WriteBadRequest(w, "Role must be User or Admin.")
		return
	}

	err = h.users.UpdateRole(r.Context(), id, role)
	if errors.Is(err, storage.ErrNotFound) {
		httputil.WriteNotFoundError(w, userIDNotFound(id))
		return
	}
	if err != nil {
		writeInternalError(w, r, err, "failed to update role")
		return
	}

	observability.GetLogger(r.Context()).
		WithFields(map[string]interface{}{"target_user_id": id, "role": role}).
		Info("user role updated")

	event := audit.NewEvent(r, audit.EventAdminRoleChange, audit.StatusSuccess)
	event.TargetUserID = audit.Int64(id)
	event.Metadata = map[string]interface{}{"role": string(role)}
	recordAudit(h.trail, r, event)
	httputil.WriteOK(w, fmt.Sprintf("User with ID %d role updated to %s.", id, role))
}

func userIDNotFound(id int64) string {
	return fmt.Sprintf("User with ID %d not found.", id)
}
