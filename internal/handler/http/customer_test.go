package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
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

// ============================================================================
// Mocks
// ============================================================================

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) Update(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *mockUserRepo) RecordLogin(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockUserRepo) Deactivate(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// captureSender records issued PIN codes so tests can log in with them.
type captureSender struct {
	codes []string
}

func (s *captureSender) SendLoginPin(_ context.Context, _, code string) error {
	s.codes = append(s.codes, code)
	return nil
}

// ============================================================================
// Fixture
// ============================================================================

const (
	custTestUserID   = "550e8400-e29b-41d4-a716-446655440001"
	custTestPassword = "Str0ng!pass"
)

type customerHTTPFixture struct {
	repo     *mockUserRepo
	sender   *captureSender
	sessions *session.Manager
	router   http.Handler
}

func newCustomerHTTPFixture(t *testing.T) *customerHTTPFixture {
	t.Helper()
	logger := testLogger()

	repo := new(mockUserRepo)
	sender := &captureSender{}
	pins := pin.NewVerifier(pin.NewMemoryStore(), 10*time.Minute, logger)
	limits := ratelimit.NewTracker(ratelimit.DefaultPolicies(), logger)
	audit := event.NewAuditProducer(nil, logger)
	svc := service.NewCustomerService(repo, pins, sender, limits, audit, logger)

	customer, admin := newTestManagers(t)
	handler := NewCustomerHandler(svc, customer, nil, logger)
	gate := NewGate(customer, admin, nil, logger)

	r := chi.NewRouter()
	r.Route("/api/auth/customer", func(r chi.Router) {
		r.Post("/register", handler.Register)
		r.Post("/login", handler.Login)
		r.Post("/send-pin", handler.SendPin)
		r.Post("/login-pin", handler.LoginWithPin)
		r.Get("/session", handler.Session)
		r.Group(func(r chi.Router) {
			r.Use(gate.RequireCustomer)
			r.Get("/me", handler.Me)
			r.Post("/logout", handler.Logout)
		})
	})

	return &customerHTTPFixture{repo: repo, sender: sender, sessions: customer, router: r}
}

func (f *customerHTTPFixture) do(method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
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

func activeCustomer(t *testing.T) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(custTestPassword), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now().UTC()
	return &domain.User{
		ID:           custTestUserID,
		Email:        "shopper@example.com",
		PasswordHash: string(hash),
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Role:         domain.RoleCustomer,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// findCookie scans Set-Cookie headers on the response for the named cookie.
func findCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ============================================================================
// Tests
// ============================================================================

func TestCustomerRegister_SetsSessionCookie(t *testing.T) {
	f := newCustomerHTTPFixture(t)
	f.repo.On("Create", mock.Anything, mock.AnythingOfType("*domain.User")).Return(nil)

	rec := f.do(http.MethodPost, "/api/auth/customer/register", map[string]string{
		"email":      "shopper@example.com",
		"password":   custTestPassword,
		"first_name": "Ada",
		"last_name":  "Lovelace",
	})

	require.Equal(t, http.StatusCreated, rec.Code)

	cookie := findCookie(t, rec, "hh_cust_sess")
	require.NotNil(t, cookie, "registration must sign the customer in")
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.True(t, cookie.HttpOnly)

	var resp response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Data)
	user := resp.Data.(map[string]any)
	assert.Equal(t, "shopper@example.com", user["email"])
	_, leaked := user["password_hash"]
	assert.False(t, leaked, "password hash must never serialize")
}

func TestCustomerRegister_ValidationError(t *testing.T) {
	f := newCustomerHTTPFixture(t)

	rec := f.do(http.MethodPost, "/api/auth/customer/register", map[string]string{
		"email":      "not-an-email",
		"password":   custTestPassword,
		"first_name": "Ada",
		"last_name":  "Lovelace",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCode(t, rec))
	f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCustomerRegister_BodyTooLarge(t *testing.T) {
	f := newCustomerHTTPFixture(t)

	rec := f.do(http.MethodPost, "/api/auth/customer/register", map[string]string{
		"email":      "shopper@example.com",
		"password":   custTestPassword,
		"first_name": strings.Repeat("a", 1<<20+1),
		"last_name":  "Lovelace",
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_INPUT", errorCode(t, rec))
	f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCustomerLogin_Success(t *testing.T) {
	f := newCustomerHTTPFixture(t)
	user := activeCustomer(t)
	f.repo.On("GetByEmail", mock.Anything, "shopper@example.com").Return(user, nil)
	f.repo.On("RecordLogin", mock.Anything, custTestUserID).Return(nil)

	rec := f.do(http.MethodPost, "/api/auth/customer/login", map[string]string{
		"email":    "shopper@example.com",
		"password": custTestPassword,
	})

	require.Equal(t, http.StatusOK, rec.Code)
	cookie := findCookie(t, rec, "hh_cust_sess")
	require.NotNil(t, cookie)

	// The issued cookie resolves to a live session for this user.
	sess, err := f.sessions.Resolve(context.Background(), cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, custTestUserID, sess.UserID)
}

func TestCustomerLogin_WrongPassword(t *testing.T) {
	f := newCustomerHTTPFixture(t)
	f.repo.On("GetByEmail", mock.Anything, "shopper@example.com").Return(activeCustomer(t), nil)

	rec := f.do(http.MethodPost, "/api/auth/customer/login", map[string]string{
		"email":    "shopper@example.com",
		"password": "Wr0ng!pass1",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_CREDENTIALS", errorCode(t, rec))
	assert.Nil(t, findCookie(t, rec, "hh_cust_sess"))
}

func TestCustomerSendPin_AlwaysAccepted(t *testing.T) {
	f := newCustomerHTTPFixture(t)
	user := activeCustomer(t)
	f.repo.On("GetByEmail", mock.Anything, "shopper@example.com").Return(user, nil)
	f.repo.On("GetByEmail", mock.Anything, "nobody@example.com").Return(nil, assert.AnError)

	known := f.do(http.MethodPost, "/api/auth/customer/send-pin", map[string]string{
		"email": "shopper@example.com",
	})
	unknown := f.do(http.MethodPost, "/api/auth/customer/send-pin", map[string]string{
		"email": "nobody@example.com",
	})

	// Identical responses for known and unknown addresses.
	assert.Equal(t, http.StatusAccepted, known.Code)
	assert.Equal(t, http.StatusAccepted, unknown.Code)
	assert.JSONEq(t, known.Body.String(), unknown.Body.String())
	assert.Len(t, f.sender.codes, 1, "only the real account receives a code")
}

func TestCustomerLoginWithPin(t *testing.T) {
	f := newCustomerHTTPFixture(t)
	user := activeCustomer(t)
	f.repo.On("GetByEmail", mock.Anything, "shopper@example.com").Return(user, nil)
	f.repo.On("RecordLogin", mock.Anything, custTestUserID).Return(nil)

	rec := f.do(http.MethodPost, "/api/auth/customer/send-pin", map[string]string{
		"email": "shopper@example.com",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, f.sender.codes, 1)

	rec = f.do(http.MethodPost, "/api/auth/customer/login-pin", map[string]string{
		"email": "shopper@example.com",
		"pin":   f.sender.codes[0],
	})

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, findCookie(t, rec, "hh_cust_sess"))

	// The code is single use.
	rec = f.do(http.MethodPost, "/api/auth/customer/login-pin", map[string]string{
		"email": "shopper@example.com",
		"pin":   f.sender.codes[0],
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCustomerSession_NoCookie(t *testing.T) {
	f := newCustomerHTTPFixture(t)

	rec := f.do(http.MethodGet, "/api/auth/customer/session", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	data := resp.Data.(map[string]any)
	assert.Nil(t, data["user"])
}

func TestCustomerSession_LiveCookie(t *testing.T) {
	f := newCustomerHTTPFixture(t)
	f.repo.On("GetByID", mock.Anything, custTestUserID).Return(activeCustomer(t), nil)

	rec := f.do(http.MethodGet, "/api/auth/customer/session", nil,
		sessionCookie(t, f.sessions, custTestUserID))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	data := resp.Data.(map[string]any)
	user := data["user"].(map[string]any)
	assert.Equal(t, "shopper@example.com", user["email"])
}

func TestCustomerMe_RequiresSession(t *testing.T) {
	f := newCustomerHTTPFixture(t)

	rec := f.do(http.MethodGet, "/api/auth/customer/me", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCustomerLogout_ClearsOnlyOwnCookie(t *testing.T) {
	f := newCustomerHTTPFixture(t)
	cookie := sessionCookie(t, f.sessions, custTestUserID)

	rec := f.do(http.MethodPost, "/api/auth/customer/logout", nil, cookie)

	require.Equal(t, http.StatusOK, rec.Code)
	cleared := findCookie(t, rec, "hh_cust_sess")
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)
	assert.Nil(t, findCookie(t, rec, "hh_admin_sess"), "admin cookie untouched")

	// Session is gone server-side too.
	_, err := f.sessions.Resolve(context.Background(), cookie.Value)
	assert.ErrorIs(t, err, session.ErrNotFound)
}
