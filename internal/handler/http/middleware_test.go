package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medusa2112/HealiosHealth-sub005/internal/domain"
	"github.com/medusa2112/HealiosHealth-sub005/internal/session"
)

const (
	customerTestSecret = "customer-secret-0123456789abcdef"
	adminTestSecret    = "admin-secret-0123456789abcdefghi"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// captureAudit records cross-domain rejections so tests can assert the gate
// reported them.
type captureAudit struct {
	rejections []string
}

func (c *captureAudit) CrossDomainRejected(_ context.Context, presented, required domain.AuthDomain, _, _ string) {
	c.rejections = append(c.rejections, string(presented)+"->"+string(required))
}

func newTestManagers(t *testing.T) (customer, admin *session.Manager) {
	t.Helper()
	logger := testLogger()
	customer, err := session.NewManager(session.NewMemoryStore(), session.Config{
		Domain:      domain.DomainCustomer,
		Secret:      customerTestSecret,
		IdleTTL:     30 * time.Minute,
		AbsoluteTTL: 24 * time.Hour,
	}, logger)
	require.NoError(t, err)
	admin, err = session.NewManager(session.NewMemoryStore(), session.Config{
		Domain:      domain.DomainAdmin,
		Secret:      adminTestSecret,
		IdleTTL:     30 * time.Minute,
		AbsoluteTTL: 24 * time.Hour,
	}, logger)
	require.NoError(t, err)
	return customer, admin
}

// sessionCookie issues a live session for userID and returns the cookie a
// browser would send back.
func sessionCookie(t *testing.T, m *session.Manager, userID string) *http.Cookie {
	t.Helper()
	sess, err := m.Issue(context.Background(), userID)
	require.NoError(t, err)
	set := m.Cookie(sess)
	return &http.Cookie{Name: set.Name, Value: set.Value}
}

// okHandler writes the principal's user ID so tests can confirm the gate
// attached the right identity.
func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := PrincipalFromContext(r.Context())
		if p == nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(p.UserID))
	})
}

func gateRequest(handler http.Handler, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestRequireCustomer_NoCookie(t *testing.T) {
	customer, admin := newTestManagers(t)
	gate := NewGate(customer, admin, nil, testLogger())

	rec := gateRequest(gate.RequireCustomer(okHandler()))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))
}

func TestRequireCustomer_LiveSession(t *testing.T) {
	customer, admin := newTestManagers(t)
	gate := NewGate(customer, admin, nil, testLogger())

	rec := gateRequest(gate.RequireCustomer(okHandler()), sessionCookie(t, customer, "cust-1"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cust-1", rec.Body.String())
}

func TestRequireCustomer_AdminSessionRejected(t *testing.T) {
	customer, admin := newTestManagers(t)
	audit := &captureAudit{}
	gate := NewGate(customer, admin, audit, testLogger())

	rec := gateRequest(gate.RequireCustomer(okHandler()), sessionCookie(t, admin, "adm-1"))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "INVALID_USER_TYPE", errorCode(t, rec))
	assert.Equal(t, []string{"admin->customer"}, audit.rejections)
}

func TestRequireCustomer_BothCookiesAdminWins(t *testing.T) {
	customer, admin := newTestManagers(t)
	gate := NewGate(customer, admin, nil, testLogger())

	rec := gateRequest(gate.RequireCustomer(okHandler()),
		sessionCookie(t, customer, "cust-1"),
		sessionCookie(t, admin, "adm-1"),
	)

	// An admin browser session never acts as a customer, even when a
	// customer session rides on the same request.
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "INVALID_USER_TYPE", errorCode(t, rec))
}

func TestRequireCustomer_GarbageCookie(t *testing.T) {
	customer, admin := newTestManagers(t)
	gate := NewGate(customer, admin, nil, testLogger())

	rec := gateRequest(gate.RequireCustomer(okHandler()), &http.Cookie{
		Name:  domain.DomainCustomer.SessionCookie(),
		Value: "not-a-real-session.bogus-signature",
	})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))
}

func TestRequireCustomer_DestroyedAdminSessionIgnored(t *testing.T) {
	customer, admin := newTestManagers(t)
	gate := NewGate(customer, admin, nil, testLogger())

	adminCookie := sessionCookie(t, admin, "adm-1")
	sess, err := admin.Resolve(context.Background(), adminCookie.Value)
	require.NoError(t, err)
	require.NoError(t, admin.Destroy(context.Background(), sess.ID))

	// A dead admin cookie is no credential at all; the live customer
	// session carries the request.
	rec := gateRequest(gate.RequireCustomer(okHandler()),
		sessionCookie(t, customer, "cust-1"),
		adminCookie,
	)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cust-1", rec.Body.String())
}

func TestRequireAdmin_NoCookie(t *testing.T) {
	customer, admin := newTestManagers(t)
	gate := NewGate(customer, admin, nil, testLogger())

	rec := gateRequest(gate.RequireAdmin(okHandler()))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHORIZED", errorCode(t, rec))
}

func TestRequireAdmin_LiveSession(t *testing.T) {
	customer, admin := newTestManagers(t)
	gate := NewGate(customer, admin, nil, testLogger())

	rec := gateRequest(gate.RequireAdmin(okHandler()), sessionCookie(t, admin, "adm-1"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "adm-1", rec.Body.String())
}

func TestRequireAdmin_CustomerSessionRejected(t *testing.T) {
	customer, admin := newTestManagers(t)
	audit := &captureAudit{}
	gate := NewGate(customer, admin, audit, testLogger())

	rec := gateRequest(gate.RequireAdmin(okHandler()), sessionCookie(t, customer, "cust-1"))

	// A presented-but-wrong-realm credential is a 403, not a 401.
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "INVALID_USER_TYPE", errorCode(t, rec))
	assert.Equal(t, []string{"customer->admin"}, audit.rejections)
}

func TestRequireAdmin_BothCookiesAdminPasses(t *testing.T) {
	customer, admin := newTestManagers(t)
	gate := NewGate(customer, admin, nil, testLogger())

	rec := gateRequest(gate.RequireAdmin(okHandler()),
		sessionCookie(t, customer, "cust-1"),
		sessionCookie(t, admin, "adm-1"),
	)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "adm-1", rec.Body.String())
}

func TestRequireAdmin_CustomerCookieNeverSwapsRealm(t *testing.T) {
	customer, admin := newTestManagers(t)
	gate := NewGate(customer, admin, nil, testLogger())

	// Replay a live customer session value under the admin cookie name. The
	// realm-bound signature fails verification before any store lookup, so
	// this is indistinguishable from no credential plus the real customer
	// cookie, which the admin gate rejects.
	custCookie := sessionCookie(t, customer, "cust-1")
	forged := &http.Cookie{Name: domain.DomainAdmin.SessionCookie(), Value: custCookie.Value}

	rec := gateRequest(gate.RequireAdmin(okHandler()), forged, custCookie)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "INVALID_USER_TYPE", errorCode(t, rec))
}

func TestContentTypeJSON(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := ContentTypeJSON(next)

	t.Run("rejects non-json body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("a=b"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("accepts json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ignores GET", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
