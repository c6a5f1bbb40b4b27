package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/medusa2112/HealiosHealth-sub005/internal/domain"
	"github.com/medusa2112/HealiosHealth-sub005/internal/ratelimit"
	"github.com/medusa2112/HealiosHealth-sub005/internal/session"
	apperrors "github.com/medusa2112/HealiosHealth-sub005/pkg/errors"
)

var gateRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "auth_rejections_total",
	Help: "Requests rejected by the access-control gates",
}, []string{"required", "reason"})

type contextKey string

const principalKey contextKey = "principal"

// PrincipalFromContext returns the authenticated principal attached by a
// gate, or nil for unauthenticated requests.
func PrincipalFromContext(ctx context.Context) *domain.Principal {
	p, _ := ctx.Value(principalKey).(*domain.Principal)
	return p
}

func withPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// Gate holds the two realm session managers and implements the access
// control middleware. Authorization is strictly per realm: each gate accepts
// only its own realm's session, and a live session from the other realm is a
// hard 403, never a fallback.
type Gate struct {
	customer *session.Manager
	admin    *session.Manager
	audit    auditSink
	logger   *slog.Logger
}

// auditSink is the slice of the audit producer the gate needs.
type auditSink interface {
	CrossDomainRejected(ctx context.Context, presented, required domain.AuthDomain, ip, path string)
}

// NewGate creates the access control gate from the two realm managers.
func NewGate(customer, admin *session.Manager, audit auditSink, logger *slog.Logger) *Gate {
	return &Gate{customer: customer, admin: admin, audit: audit, logger: logger}
}

// resolve looks up the realm's session cookie on the request and resolves it
// to a live session. Missing, malformed, stale, and tampered cookies all
// come back as session.ErrNotFound.
func resolve(r *http.Request, m *session.Manager) (*domain.Session, error) {
	cookie, err := r.Cookie(m.Domain().SessionCookie())
	if err != nil || cookie.Value == "" {
		return nil, session.ErrNotFound
	}
	return m.Resolve(r.Context(), cookie.Value)
}

// RequireCustomer passes only requests carrying a live customer session. A
// live admin session on the same request is rejected outright: an admin
// browser session must never act as a customer, even when both cookies are
// present.
func (g *Gate) RequireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if adminSess, err := resolve(r, g.admin); err == nil && adminSess != nil {
			g.reject(w, r, domain.DomainAdmin, domain.DomainCustomer)
			return
		}

		sess, err := resolve(r, g.customer)
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) {
				writeAppError(w, r, apperrors.Internal(err))
				return
			}
			gateRejections.WithLabelValues(string(domain.DomainCustomer), "unauthenticated").Inc()
			writeAppError(w, r, apperrors.Unauthorized("authentication required"))
			return
		}

		p := &domain.Principal{
			UserID:    sess.UserID,
			Role:      domain.RoleCustomer,
			Domain:    domain.DomainCustomer,
			SessionID: sess.ID,
		}
		next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
	})
}

// RequireAdmin passes only requests carrying a live admin session. A
// customer session is never accepted here, including requests presenting
// both cookies: a customer-session-only request gets 403, not 401, because a
// credential was presented but belongs to the wrong realm.
func (g *Gate) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := resolve(r, g.admin)
		if err == nil {
			p := &domain.Principal{
				UserID:    sess.UserID,
				Role:      domain.RoleAdmin,
				Domain:    domain.DomainAdmin,
				SessionID: sess.ID,
			}
			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), p)))
			return
		}
		if !errors.Is(err, session.ErrNotFound) {
			writeAppError(w, r, apperrors.Internal(err))
			return
		}

		if custSess, cerr := resolve(r, g.customer); cerr == nil && custSess != nil {
			g.reject(w, r, domain.DomainCustomer, domain.DomainAdmin)
			return
		}

		gateRejections.WithLabelValues(string(domain.DomainAdmin), "unauthenticated").Inc()
		writeAppError(w, r, apperrors.Unauthorized("authentication required"))
	})
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, presented, required domain.AuthDomain) {
	gateRejections.WithLabelValues(string(required), "cross_domain").Inc()
	ip := ratelimit.ClientIP(r)
	g.logger.WarnContext(r.Context(), "cross-domain session rejected",
		slog.String("presented", string(presented)),
		slog.String("required", string(required)),
		slog.String("ip", ip),
		slog.String("path", r.URL.Path),
	)
	if g.audit != nil {
		g.audit.CrossDomainRejected(r.Context(), presented, required, ip, r.URL.Path)
	}
	writeAppError(w, r, apperrors.InvalidUserType())
}

// ContentTypeJSON rejects mutating requests whose body is not declared as
// JSON.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			ct := r.Header.Get("Content-Type")
			if r.ContentLength > 0 && !strings.HasPrefix(ct, "application/json") {
				writeJSON(w, http.StatusUnsupportedMediaType, response{
					Error: &errorResponse{Code: "UNSUPPORTED_MEDIA_TYPE", Message: "Content-Type must be application/json"},
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
