package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmdash/internal/account"
	"farmdash/internal/audit"
	"farmdash/internal/email"
	"farmdash/internal/farm"
	"farmdash/internal/identity"
	"farmdash/internal/organisation"
	"farmdash/internal/rbac"
	"farmdash/internal/store"
	"farmdash/internal/validator"
)

type noopTelemetry struct{}

func (noopTelemetry) RecordUserRegistration(context.Context, string, bool) {}
func (noopTelemetry) RecordPermissionCheck(context.Context, string, bool)  {}
func (noopTelemetry) Shutdown(context.Context) error                      { return nil }

type webEnv struct {
	app   *fiber.App
	roles *rbac.Manager
}

func newWebEnv(t *testing.T, docs store.DocumentStore, timeout time.Duration) *webEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	auditor := audit.NewAuditor(logger, docs, true)
	roles := rbac.NewManager(logger, docs, &auditor, nil)
	accounts := account.NewManager(logger, docs, &roles, &auditor, "")
	farms := farm.NewManager(logger, docs, &roles, &auditor)
	organisations := organisation.NewManager(logger, docs, &roles, &auditor, nil)
	provider := identity.NewLocalProvider(logger, docs, email.NewLogSender(logger), false)
	authenticator := account.NewAuthenticator(logger, &provider, &accounts, &farms, &auditor)

	h := NewHandler(logger, session.New(), validator.New(), &authenticator,
		&accounts, &roles, &organisations, &farms, &auditor, noopTelemetry{}, timeout)

	app := fiber.New()
	app.Post("/auth/sign-up", h.SignUp)
	app.Post("/auth/sign-in", h.SignIn)
	authenticated := app.Group("", h.RequireAuth())
	authenticated.Get("/me", h.Me)
	authenticated.Post("/roles", h.GrantRole)

	return &webEnv{app: app, roles: &roles}
}

func (e *webEnv) request(t *testing.T, method, path string, body any, cookie *http.Cookie) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := e.app.Test(req, 5000)
	require.NoError(t, err)
	return resp
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "session_id" {
			return cookie
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHandler_SignUpAndMe(t *testing.T) {
	env := newWebEnv(t, store.NewMemoryStore(), 0)

	resp := env.request(t, http.MethodPost, "/auth/sign-up", fiber.Map{
		"email": "grower@example.com", "password": "Sunrise1", "displayName": "Grower",
	}, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	cookie := sessionCookie(t, resp)

	me := env.request(t, http.MethodGet, "/me", nil, cookie)
	require.Equal(t, fiber.StatusOK, me.StatusCode)
	user := decodeBody[account.User](t, me)
	assert.Equal(t, "grower@example.com", user.Email)
}

func TestHandler_SignIn_InvalidCredentials(t *testing.T) {
	env := newWebEnv(t, store.NewMemoryStore(), 0)

	resp := env.request(t, http.MethodPost, "/auth/sign-in", fiber.Map{
		"email": "grower@example.com", "password": "Wrong1234",
	}, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestHandler_GrantRole_WithExpiry(t *testing.T) {
	env := newWebEnv(t, store.NewMemoryStore(), 0)
	ctx := context.Background()

	resp := env.request(t, http.MethodPost, "/auth/sign-up", fiber.Map{
		"email": "admin@example.com", "password": "Sunrise1",
	}, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	cookie := sessionCookie(t, resp)
	admin := decodeBody[account.User](t, resp)

	_, err := env.roles.GrantRole(ctx, rbac.GrantRoleParam{
		UserID: admin.UID, RoleType: rbac.RoleSuperAdmin, ScopeType: rbac.ScopeSystem, GrantedBy: admin.UID,
	})
	require.NoError(t, err)

	expiresAt := time.Now().UTC().Add(90 * 24 * time.Hour).Truncate(time.Second)
	granted := env.request(t, http.MethodPost, "/roles", fiber.Map{
		"userId":    "worker-1",
		"roleType":  string(rbac.RoleSeasonalWorker),
		"scopeType": string(rbac.ScopeFarm),
		"scopeId":   "farm-a",
		"expiresAt": expiresAt.Format(time.RFC3339),
	}, cookie)
	require.Equal(t, fiber.StatusCreated, granted.StatusCode)

	role := decodeBody[rbac.UserRole](t, granted)
	got, ok := role.ExpiresAt.Get()
	require.True(t, ok)
	assert.True(t, got.Equal(expiresAt))

	stored, err := env.roles.GetRole(ctx, role.ID)
	require.NoError(t, err)
	assert.True(t, stored.ExpiresAt.IsSet)
}

func TestHandler_GrantRole_WithoutPermission(t *testing.T) {
	env := newWebEnv(t, store.NewMemoryStore(), 0)

	resp := env.request(t, http.MethodPost, "/auth/sign-up", fiber.Map{
		"email": "grower@example.com", "password": "Sunrise1",
	}, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	cookie := sessionCookie(t, resp)

	granted := env.request(t, http.MethodPost, "/roles", fiber.Map{
		"userId":    "worker-1",
		"roleType":  string(rbac.RoleFarmViewer),
		"scopeType": string(rbac.ScopeFarm),
		"scopeId":   "farm-a",
	}, cookie)
	assert.Equal(t, fiber.StatusForbidden, granted.StatusCode)
}

// stallingStore blocks reads until the caller's context expires, standing in
// for an unresponsive backend.
type stallingStore struct {
	store.DocumentStore
}

func (s stallingStore) Get(ctx context.Context, collection, id string, out any) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s stallingStore) Query(ctx context.Context, collection string, filters []store.Filter, order []store.Ordering) ([]json.RawMessage, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestHandler_OperationTimeoutFailsClosed(t *testing.T) {
	env := newWebEnv(t, stallingStore{store.NewMemoryStore()}, 50*time.Millisecond)

	start := time.Now()
	resp := env.request(t, http.MethodPost, "/auth/sign-in", fiber.Map{
		"email": "grower@example.com", "password": "Sunrise1",
	}, nil)

	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Less(t, time.Since(start), 3*time.Second)
}
