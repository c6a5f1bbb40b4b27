// Package csrf implements double-submit CSRF protection, one Protector per
// auth realm. The token lives in a JavaScript-readable cookie scoped to the
// realm and must be echoed back in the X-CSRF-Token header on every mutating
// request.
package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/medusa2112/HealiosHealth-sub005/internal/domain"
	apperrors "github.com/medusa2112/HealiosHealth-sub005/pkg/errors"
	"github.com/medusa2112/HealiosHealth-sub005/pkg/httputil"
)

// HeaderName is the request header carrying the CSRF token.
const HeaderName = "X-CSRF-Token"

const tokenBytes = 32

var csrfFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "auth_csrf_failures_total",
	Help: "Total number of requests rejected by CSRF validation, by auth realm.",
}, []string{"domain"})

// Protector issues and validates double-submit tokens for one auth realm.
type Protector struct {
	domain domain.AuthDomain
	secure bool
	ttl    time.Duration
	logger *slog.Logger
}

// NewProtector creates a CSRF protector for one realm. ttl bounds the token
// cookie lifetime; it should match the realm's absolute session TTL.
func NewProtector(d domain.AuthDomain, secure bool, ttl time.Duration, logger *slog.Logger) *Protector {
	return &Protector{
		domain: d,
		secure: secure,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "csrf"), slog.String("domain", string(d))),
	}
}

// IssueToken returns a fresh random token, base64url without padding.
func (p *Protector) IssueToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Cookie builds the realm's CSRF cookie. Unlike the session cookie it is NOT
// HttpOnly: the frontend reads it and mirrors the value into the header.
func (p *Protector) Cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     p.domain.CSRFCookie(),
		Value:    token,
		Path:     p.domain.CookiePath(),
		Expires:  time.Now().Add(p.ttl),
		HttpOnly: false,
		Secure:   p.secure,
		SameSite: p.domain.SameSite(),
	}
}

// ClearCookie builds an expired cookie that removes the realm's CSRF cookie.
func (p *Protector) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     p.domain.CSRFCookie(),
		Value:    "",
		Path:     p.domain.CookiePath(),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: false,
		Secure:   p.secure,
		SameSite: p.domain.SameSite(),
	}
}

// Validate checks the double-submit pair on a request: the realm's CSRF
// cookie must be present and the X-CSRF-Token header must equal it. The
// comparison is constant-time.
func (p *Protector) Validate(r *http.Request) error {
	cookie, err := r.Cookie(p.domain.CSRFCookie())
	if err != nil || cookie.Value == "" {
		return apperrors.CsrfFailed()
	}
	header := r.Header.Get(HeaderName)
	if header == "" {
		return apperrors.CsrfFailed()
	}
	if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(header)) != 1 {
		return apperrors.CsrfFailed()
	}
	return nil
}

// Middleware enforces Validate on every mutating request. Safe methods (GET,
// HEAD, OPTIONS) pass through untouched.
func (p *Protector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		if err := p.Validate(r); err != nil {
			csrfFailures.WithLabelValues(string(p.domain)).Inc()
			p.logger.Warn("csrf validation failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)
			httputil.WriteError(w, r, err, p.logger)
			return
		}

		next.ServeHTTP(w, r)
	})
}
