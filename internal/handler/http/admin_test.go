package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/medusa2112/HealiosHealth-sub005/internal/domain"
	"github.com/medusa2112/HealiosHealth-sub005/internal/event"
	"github.com/medusa2112/HealiosHealth-sub005/internal/pin"
	"github.com/medusa2112/HealiosHealth-sub005/internal/ratelimit"
	"github.com/medusa2112/HealiosHealth-sub005/internal/service"
	"github.com/medusa2112/HealiosHealth-sub005/internal/session"
)

const (
	adminTestUserID   = "550e8400-e29b-41d4-a716-446655440002"
	adminTestEmail    = "ops@example.com"
	adminTestPassword = "0ps!Secret#1"
)

type adminHTTPFixture struct {
	repo     *mockUserRepo
	sender   *captureSender
	sessions *session.Manager
	router   http.Handler
}

func newAdminHTTPFixture(t *testing.T, allowlist []string) *adminHTTPFixture {
	t.Helper()
	logger := testLogger()

	repo := new(mockUserRepo)
	sender := &captureSender{}
	pins := pin.NewVerifier(pin.NewMemoryStore(), 10*time.Minute, logger)
	limits := ratelimit.NewTracker(ratelimit.DefaultPolicies(), logger)
	audit := event.NewAuditProducer(nil, logger)
	svc := service.NewAdminService(repo, pins, sender, limits, audit, allowlist, false, logger)

	customer, admin := newTestManagers(t)
	handler := NewAdminHandler(svc, admin, nil, logger)
	gate := NewGate(customer, admin, nil, logger)

	r := chi.NewRouter()
	r.Route("/api/auth/admin", func(r chi.Router) {
		r.Post("/login", handler.Login)
		r.Post("/send-pin", handler.SendPin)
		r.Post("/verify-pin", handler.VerifyPin)
		r.Get("/session", handler.Session)
		r.Group(func(r chi.Router) {
			r.Use(gate.RequireAdmin)
			r.Get("/me", handler.Me)
			r.Post("/change-password", handler.ChangePassword)
			r.Post("/logout", handler.Logout)
		})
	})

	return &adminHTTPFixture{repo: repo, sender: sender, sessions: admin, router: r}
}

func (f *adminHTTPFixture) do(method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func activeAdmin(t *testing.T) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(adminTestPassword), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now().UTC()
	return &domain.User{
		ID:           adminTestUserID,
		Email:        adminTestEmail,
		PasswordHash: string(hash),
		FirstName:    "Grace",
		LastName:     "Hopper",
		Role:         domain.RoleAdmin,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestAdminLogin_SetsAdminCookie(t *testing.T) {
	f := newAdminHTTPFixture(t, []string{adminTestEmail})
	f.repo.On("GetByEmail", mock.Anything, adminTestEmail).Return(activeAdmin(t), nil)
	f.repo.On("RecordLogin", mock.Anything, adminTestUserID).Return(nil)

	rec := f.do(http.MethodPost, "/api/auth/admin/login", map[string]string{
		"email":    adminTestEmail,
		"password": adminTestPassword,
	})

	require.Equal(t, http.StatusOK, rec.Code)

	cookie := findCookie(t, rec, "hh_admin_sess")
	require.NotNil(t, cookie)
	assert.Equal(t, "/admin", cookie.Path)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.True(t, cookie.HttpOnly)
	assert.Nil(t, findCookie(t, rec, "hh_cust_sess"))
}

func TestAdminLogin_NotAllowlisted(t *testing.T) {
	f := newAdminHTTPFixture(t, []string{"someone-else@example.com"})

	rec := f.do(http.MethodPost, "/api/auth/admin/login", map[string]string{
		"email":    adminTestEmail,
		"password": adminTestPassword,
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, rec))
	// Credentials are never checked for off-list emails.
	f.repo.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
}

func TestAdminLogin_CustomerAccountRejected(t *testing.T) {
	f := newAdminHTTPFixture(t, []string{"shopper@example.com"})
	shopper := activeCustomer(t)
	f.repo.On("GetByEmail", mock.Anything, "shopper@example.com").Return(shopper, nil)

	rec := f.do(http.MethodPost, "/api/auth/admin/login", map[string]string{
		"email":    "shopper@example.com",
		"password": custTestPassword,
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "INVALID_USER_TYPE", errorCode(t, rec))
	assert.Nil(t, findCookie(t, rec, "hh_admin_sess"))
}

func TestAdminVerifyPin(t *testing.T) {
	f := newAdminHTTPFixture(t, []string{adminTestEmail})
	f.repo.On("GetByEmail", mock.Anything, adminTestEmail).Return(activeAdmin(t), nil)
	f.repo.On("RecordLogin", mock.Anything, adminTestUserID).Return(nil)

	rec := f.do(http.MethodPost, "/api/auth/admin/send-pin", map[string]string{
		"email": adminTestEmail,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, f.sender.codes, 1)

	rec = f.do(http.MethodPost, "/api/auth/admin/verify-pin", map[string]string{
		"email": adminTestEmail,
		"pin":   f.sender.codes[0],
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, findCookie(t, rec, "hh_admin_sess"))
}

func TestAdminSendPin_ForbiddenForOffListEmail(t *testing.T) {
	f := newAdminHTTPFixture(t, []string{adminTestEmail})

	rec := f.do(http.MethodPost, "/api/auth/admin/send-pin", map[string]string{
		"email": "intruder@example.com",
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, rec))
	assert.Empty(t, f.sender.codes)
	f.repo.AssertNotCalled(t, "GetByEmail", mock.Anything, mock.Anything)
}

func TestAdminChangePassword(t *testing.T) {
	f := newAdminHTTPFixture(t, []string{adminTestEmail})
	f.repo.On("GetByID", mock.Anything, adminTestUserID).Return(activeAdmin(t), nil)
	f.repo.On("UpdatePassword", mock.Anything, adminTestUserID, mock.AnythingOfType("string")).Return(nil)

	rec := f.do(http.MethodPost, "/api/auth/admin/change-password", map[string]string{
		"current_password": adminTestPassword,
		"new_password":     "Fresh!Secret2",
	}, sessionCookie(t, f.sessions, adminTestUserID))

	require.Equal(t, http.StatusOK, rec.Code)
	f.repo.AssertCalled(t, "UpdatePassword", mock.Anything, adminTestUserID, mock.AnythingOfType("string"))
}

func TestAdminChangePassword_WrongCurrent(t *testing.T) {
	f := newAdminHTTPFixture(t, []string{adminTestEmail})
	f.repo.On("GetByID", mock.Anything, adminTestUserID).Return(activeAdmin(t), nil)

	rec := f.do(http.MethodPost, "/api/auth/admin/change-password", map[string]string{
		"current_password": "not-the-password1!A",
		"new_password":     "Fresh!Secret2",
	}, sessionCookie(t, f.sessions, adminTestUserID))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	f.repo.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestAdminChangePassword_RequiresSession(t *testing.T) {
	f := newAdminHTTPFixture(t, []string{adminTestEmail})

	rec := f.do(http.MethodPost, "/api/auth/admin/change-password", map[string]string{
		"current_password": adminTestPassword,
		"new_password":     "Fresh!Secret2",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAdminSession_NoCookie(t *testing.T) {
	f := newAdminHTTPFixture(t, []string{adminTestEmail})

	rec := f.do(http.MethodGet, "/api/auth/admin/session", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	data := resp.Data.(map[string]any)
	assert.Nil(t, data["user"])
}

func TestAdminLogout_ClearsAdminCookie(t *testing.T) {
	f := newAdminHTTPFixture(t, []string{adminTestEmail})
	cookie := sessionCookie(t, f.sessions, adminTestUserID)

	rec := f.do(http.MethodPost, "/api/auth/admin/logout", nil, cookie)

	require.Equal(t, http.StatusOK, rec.Code)
	cleared := findCookie(t, rec, "hh_admin_sess")
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)
	assert.Equal(t, "/admin", cleared.Path)
	assert.Nil(t, findCookie(t, rec, "hh_cust_sess"))

	_, err := f.sessions.Resolve(context.Background(), cookie.Value)
	assert.ErrorIs(t, err, session.ErrNotFound)
}
