package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/danharap/TaskManager-Backend/pkg/auth"
	"github.com/danharap/TaskManager-Backend/pkg/observability"
	"github.com/danharap/TaskManager-Backend/pkg/storage"
	"github.com/danharap/TaskManager-Backend/pkg/storage/sqlstore"
)

const testSecret = "test-secret-that-is-at-least-32-bytes!"

// fastArgon2 keeps password hashing cheap in tests
var fastArgon2 = auth.Argon2Params{Memory: 64, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32}

type testEnv struct {
	server  *Server
	store   *sqlstore.Store
	issuer  *auth.TokenIssuer
	hasher  *auth.PasswordHasher
	metrics *observability.Metrics
	logs    *bytes.Buffer
}

// newTestEnv builds a server over an in-memory SQLite store
func newTestEnv(t testing.TB, mutate ...func(*Config)) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := sqlstore.Open(ctx, storage.Config{Driver: sqlstore.DriverSQLite, URL: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = sqlstore.RunMigrations(ctx, db)
	require.NoError(t, err)

	issuer, err := auth.NewTokenIssuer(testSecret, 0)
	require.NoError(t, err)

	env := &testEnv{
		store:   sqlstore.New(db),
		issuer:  issuer,
		hasher:  auth.NewPasswordHasherWithParams(auth.SchemeArgon2id, fastArgon2),
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		logs:    &bytes.Buffer{},
	}

	cfg := Config{
		Store:       env.store,
		Issuer:      env.issuer,
		Hasher:      env.hasher,
		Logger:      observability.NewLogger(observability.DebugLevel, env.logs),
		Metrics:     env.metrics,
		CORSOrigins: []string{"*"},
	}
	for _, m := range mutate {
		m(&cfg)
	}

	env.server = NewServer(cfg)
	return env
}

// do sends a request through the full middleware chain. A non-nil body is
// JSON encoded; a []byte body is sent as is.
func (e *testEnv) do(t testing.TB, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) register(t testing.TB, username, password, role string) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username, "passwordHash": password, "role": role,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (e *testEnv) login(t testing.TB, username, password string) loginResponse {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username, "passwordHash": password,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// account registers and logs in a user, returning the token and user id
func (e *testEnv) account(t testing.TB, username string, role auth.Role) (string, int64) {
	t.Helper()
	e.register(t, username, "pw-"+username, string(role))
	token := e.login(t, username, "pw-"+username).Token

	user, err := e.store.GetUserByUsername(context.Background(), username)
	require.NoError(t, err)
	return token, user.ID
}

func decodeMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"Message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Message
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func strPtr(s string) *string { return &s }

func itoa(id int64) string { return strconv.FormatInt(id, 10) }
