package api

import (
	"context"
	"math"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danharap/TaskManager-Backend/pkg/auth"
	"github.com/danharap/TaskManager-Backend/pkg/storage"
)

func TestRegister(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		expectedStatus int
		expectedMsg    string
	}{
		{
			name:           "success",
			body:           map[string]string{"username": "alice", "passwordHash": "pw1"},
			expectedStatus: http.StatusOK,
			expectedMsg:    "User registered successfully.",
		},
		{
			name:           "missing username",
			body:           map[string]string{"passwordHash": "pw1"},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "Username and password are required.",
		},
		{
			name:           "missing password",
			body:           map[string]string{"username": "bob"},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "Username and password are required.",
		},
		{
			name:           "unknown role",
			body:           map[string]string{"username": "carol", "passwordHash": "pw", "role": "superuser"},
			expectedStatus: http.StatusBadRequest,
			expectedMsg:    "Role must be User or Admin.",
		},
		{
			name:           "malformed body",
			body:           []byte(`{"username":`),
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rec := env.do(t, http.MethodPost, "/api/auth/register", "", tt.body)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedMsg != "" {
				assert.Equal(t, tt.expectedMsg, decodeMessage(t, rec))
			}
		})
	}
}

func TestRegister_DefaultsAndCanonicalRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.register(t, "plain", "pw", "")
	env.register(t, "boss", "pw", "aDmIn")

	plain, err := env.store.GetUserByUsername(ctx, "plain")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleUser, plain.Role)
	assert.True(t, strings.HasPrefix(plain.PasswordHash, "$argon2id$"), "password must not be stored in clear")

	boss, err := env.store.GetUserByUsername(ctx, "boss")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, boss.Role)

	assert.Equal(t, float64(2), testutil.ToFloat64(env.metrics.UsersRegisteredTotal))
}

func TestRegister_DuplicateUsername(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "pw1", "")

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
			"username": "alice", "passwordHash": "other",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "Username already exists.", decodeMessage(t, rec))
	}
}

func TestLogin_Success(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "pw1", "Admin")

	resp := env.login(t, "alice", "pw1")

	assert.Equal(t, "Admin", resp.Role)
	assert.Equal(t, "alice", resp.Name)

	user, err := env.store.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)

	principal, err := env.issuer.Validate(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, principal.UserID)
	assert.Equal(t, auth.RoleAdmin, principal.Role)

	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.LoginAttemptsTotal.WithLabelValues("success")))
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "pw1", "")

	wrongPassword := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice", "passwordHash": "nope",
	})
	unknownUser := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "mallory", "passwordHash": "pw1",
	})

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownUser.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownUser.Body.String())
	assert.Equal(t, "Invalid username or password.", decodeMessage(t, wrongPassword))
	assert.Equal(t, float64(2), testutil.ToFloat64(env.metrics.LoginAttemptsTotal.WithLabelValues("failure")))
}

// countingHasher records how often each verification path runs
type countingHasher struct {
	PasswordHasher
	verify  atomic.Int32
	missing atomic.Int32
}

func (c *countingHasher) Verify(ctx context.Context, password, digest string) (bool, bool) {
	c.verify.Add(1)
	return c.PasswordHasher.Verify(ctx, password, digest)
}

func (c *countingHasher) VerifyMissing(ctx context.Context, password string) {
	c.missing.Add(1)
	c.PasswordHasher.VerifyMissing(ctx, password)
}

func TestLogin_UnknownUserStillVerifies(t *testing.T) {
	hasher := &countingHasher{
		PasswordHasher: auth.NewPasswordHasherWithParams(auth.SchemeArgon2id, fastArgon2),
	}
	env := newTestEnv(t, func(c *Config) { c.Hasher = hasher })
	env.register(t, "alice", "pw1", "")

	rec := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "mallory", "passwordHash": "pw1",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, int32(1), hasher.missing.Load())
	assert.Equal(t, int32(0), hasher.verify.Load())

	rec = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "alice", "passwordHash": "nope",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, int32(1), hasher.missing.Load())
	assert.Equal(t, int32(1), hasher.verify.Load())
}

func TestLogin_UnknownUserTiming(t *testing.T) {
	if testing.Short() {
		t.Skip("timing comparison skipped in short mode")
	}

	params := auth.Argon2Params{Memory: 8 * 1024, Time: 2, Threads: 1, SaltLen: 16, KeyLen: 32}
	env := newTestEnv(t, func(c *Config) {
		c.Hasher = auth.NewPasswordHasherWithParams(auth.SchemeArgon2id, params)
	})
	env.register(t, "alice", "pw1", "")

	elapsed := func(username string) time.Duration {
		body := map[string]string{"username": username, "passwordHash": "nope"}
		best := time.Duration(math.MaxInt64)
		for i := 0; i < 5; i++ {
			start := time.Now()
			rec := env.do(t, http.MethodPost, "/api/auth/login", "", body)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
			if d := time.Since(start); d < best {
				best = d
			}
		}
		return best
	}

	known := elapsed("alice")
	unknown := elapsed("mallory")

	ratio := float64(unknown) / float64(known)
	assert.Greater(t, ratio, 0.3, "unknown=%s known=%s", unknown, known)
	assert.Less(t, ratio, 3.0, "unknown=%s known=%s", unknown, known)
}

func TestLogin_UsernameIsCaseSensitive(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "pw1", "")

	rec := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "Alice", "passwordHash": "pw1",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_UpgradesLegacyDigest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	legacy := &auth.User{Username: "old", PasswordHash: auth.LegacyDigest("pw"), Role: auth.RoleUser}
	require.NoError(t, env.store.CreateUser(ctx, legacy))

	resp := env.login(t, "old", "pw")
	assert.NotEmpty(t, resp.Token)

	stored, err := env.store.GetUser(ctx, legacy.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))
	assert.Contains(t, env.logs.String(), "upgraded legacy password digest")

	// the upgraded digest still accepts the same password
	env.login(t, "old", "pw")
}

func TestLogin_LegacySchemeKeepsDigest(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.Hasher = auth.NewPasswordHasher(auth.SchemeSHA256)
	})
	ctx := context.Background()

	env.register(t, "alice", "pw1", "")
	user, err := env.store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, auth.LegacyDigest("pw1"), user.PasswordHash)

	env.login(t, "alice", "pw1")

	after, err := env.store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.PasswordHash, after.PasswordHash)
}

func TestChangeUsername(t *testing.T) {
	env := newTestEnv(t)
	token, id := env.account(t, "alice", auth.RoleUser)
	env.account(t, "bob", auth.RoleUser)

	tests := []struct {
		name           string
		token          string
		body           changeUsernameRequest
		expectedStatus int
		expectedMsg    string
	}{
		{"no token", "", changeUsernameRequest{"alice", "alice2"}, http.StatusUnauthorized, "Missing authorization header."},
		{"wrong current username", token, changeUsernameRequest{"Alice", "alice2"}, http.StatusBadRequest, "Current username is incorrect."},
		{"taken", token, changeUsernameRequest{"alice", "bob"}, http.StatusBadRequest, "Username already exists."},
		{"blank", token, changeUsernameRequest{"alice", "  "}, http.StatusBadRequest, "New username is required."},
		{"success", token, changeUsernameRequest{"alice", "alice2"}, http.StatusOK, "Username updated successfully."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPut, "/api/auth/username", tt.token, tt.body)
			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Equal(t, tt.expectedMsg, decodeMessage(t, rec))
		})
	}

	user, err := env.store.GetUser(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "alice2", user.Username)
}

func TestChangeUsername_UserGone(t *testing.T) {
	env := newTestEnv(t)
	token, id := env.account(t, "alice", auth.RoleUser)
	require.NoError(t, env.store.DeleteUser(context.Background(), id))

	rec := env.do(t, http.MethodPut, "/api/auth/username", token, changeUsernameRequest{"alice", "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found.", decodeMessage(t, rec))
}

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.account(t, "alice", auth.RoleUser)

	rec := env.do(t, http.MethodPut, "/api/auth/password", token, changePasswordRequest{"wrong", "new-pw"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Current password is incorrect.", decodeMessage(t, rec))

	rec = env.do(t, http.MethodPut, "/api/auth/password", token, changePasswordRequest{"pw-alice", ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "New password is required.", decodeMessage(t, rec))

	rec = env.do(t, http.MethodPut, "/api/auth/password", token, changePasswordRequest{"pw-alice", "new-pw"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Password updated successfully.", decodeMessage(t, rec))

	env.login(t, "alice", "new-pw")
	old := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"username": "alice", "passwordHash": "pw-alice"})
	assert.Equal(t, http.StatusUnauthorized, old.Code)
}

func TestDeleteOwnAccount_Cascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	token, id := env.account(t, "alice", auth.RoleUser)

	task := &storage.Task{Title: strPtr("t"), UserID: id}
	require.NoError(t, env.store.CreateTask(ctx, task))
	sub := &storage.SubTask{Title: strPtr("s"), TaskID: task.ID}
	require.NoError(t, env.store.CreateSubTask(ctx, sub))
	require.NoError(t, env.store.CreateNotification(ctx, &storage.Notification{UserID: id, Type: "info", Message: "hi"}))

	rec := env.do(t, http.MethodDelete, "/api/auth/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Your account and all associated data have been deleted.", decodeMessage(t, rec))

	_, err := env.store.GetTask(ctx, task.ID, storage.AnyOwner)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	subs, err := env.store.ListSubTasks(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, subs)

	// the token outlives the account
	rec = env.do(t, http.MethodDelete, "/api/auth/users/me", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User not found.", decodeMessage(t, rec))
}

func TestAdminRoutes_RequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	userToken, _ := env.account(t, "alice", auth.RoleUser)

	routes := []struct {
		method string
		path   string
		body   interface{}
	}{
		{http.MethodGet, "/api/auth/users", nil},
		{http.MethodDelete, "/api/auth/users/1", nil},
		{http.MethodPut, "/api/auth/users/1/role", "Admin"},
		{http.MethodPut, "/api/auth/admin/users/1/username", changeUsernameRequest{NewUsername: "x"}},
		{http.MethodGet, "/api/tasks/all", nil},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			rec := env.do(t, rt.method, rt.path, userToken, rt.body)
			assert.Equal(t, http.StatusForbidden, rec.Code)

			rec = env.do(t, rt.method, rt.path, "", rt.body)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestListUsers(t *testing.T) {
	env := newTestEnv(t)
	adminToken, _ := env.account(t, "root", auth.RoleAdmin)
	env.account(t, "alice", auth.RoleUser)

	rec := env.do(t, http.MethodGet, "/api/auth/users", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	users := decodeJSON[[]map[string]interface{}](t, rec)
	require.Len(t, users, 2)
	for _, u := range users {
		assert.Contains(t, u, "id")
		assert.Contains(t, u, "username")
		assert.Contains(t, u, "passwordHash")
		assert.Contains(t, u, "role")
	}
}

func TestAdminChangeUsername(t *testing.T) {
	env := newTestEnv(t)
	adminToken, _ := env.account(t, "root", auth.RoleAdmin)
	_, aliceID := env.account(t, "alice", auth.RoleUser)

	rec := env.do(t, http.MethodPut, "/api/auth/admin/users/999/username", adminToken, changeUsernameRequest{NewUsername: "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User with ID 999 not found.", decodeMessage(t, rec))

	rec = env.do(t, http.MethodPut, "/api/auth/admin/users/1/username", adminToken, changeUsernameRequest{NewUsername: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "New username is required.", decodeMessage(t, rec))

	rec = env.do(t, http.MethodPut, "/api/auth/admin/users/1/username", adminToken, changeUsernameRequest{NewUsername: "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Username already exists.", decodeMessage(t, rec))

	path := "/api/auth/admin/users/" + itoa(aliceID) + "/username"
	rec = env.do(t, http.MethodPut, path, adminToken, changeUsernameRequest{NewUsername: "alicia"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Username for user ID "+itoa(aliceID)+" updated successfully.", decodeMessage(t, rec))
}

func TestAdminDeleteUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	adminToken, _ := env.account(t, "root", auth.RoleAdmin)
	_, aliceID := env.account(t, "alice", auth.RoleUser)

	task := &storage.Task{Title: strPtr("t"), UserID: aliceID}
	require.NoError(t, env.store.CreateTask(ctx, task))
	require.NoError(t, env.store.CreateSubTask(ctx, &storage.SubTask{TaskID: task.ID}))

	rec := env.do(t, http.MethodDelete, "/api/auth/users/999", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User with ID 999 not found.", decodeMessage(t, rec))

	rec = env.do(t, http.MethodDelete, "/api/auth/users/"+itoa(aliceID), adminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "User with ID "+itoa(aliceID)+" and their tasks have been deleted.", decodeMessage(t, rec))

	_, err := env.store.GetTask(ctx, task.ID, storage.AnyOwner)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	subs, err := env.store.ListSubTasks(ctx, task.ID)
	require.NoError(t, err)
	assert.Empty(t, subs, "admin delete cascades to subtasks as well")
}

func TestUpdateUserRole(t *testing.T) {
	env := newTestEnv(t)
	adminToken, _ := env.account(t, "root", auth.RoleAdmin)
	_, aliceID := env.account(t, "alice", auth.RoleUser)
	path := "/api/auth/users/" + itoa(aliceID) + "/role"

	tests := []struct {
		name           string
		path           string
		body           interface{}
		expectedStatus int
		expectedMsg    string
	}{
		{"invalid role", path, "superuser", http.StatusBadRequest, "Role must be User or Admin."},
		{"not a string", path, []byte(`{"role":"Admin"}`), http.StatusBadRequest, ""},
		{"missing user", "/api/auth/users/999/role", "Admin", http.StatusNotFound, "User with ID 999 not found."},
		{"success canonicalizes", path, "admin", http.StatusOK, "User with ID " + itoa(aliceID) + " role updated to Admin."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPut, tt.path, adminToken, tt.body)
			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedMsg != "" {
				assert.Equal(t, tt.expectedMsg, decodeMessage(t, rec))
			}
		})
	}

	user, err := env.store.GetUser(context.Background(), aliceID)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, user.Role)

	// a new login picks up the new role
	assert.Equal(t, "Admin", env.login(t, "alice", "pw-alice").Role)
}
