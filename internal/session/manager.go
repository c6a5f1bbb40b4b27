package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/medusa2112/HealiosHealth-sub005/internal/domain"
)

// minSecretLen is the minimum accepted HMAC secret length in bytes.
const minSecretLen = 32

var (
	sessionsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_sessions_issued_total",
		Help: "Total number of sessions issued, by auth realm.",
	}, []string{"domain"})

	sessionsSwept = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_sessions_swept_total",
		Help: "Total number of expired sessions removed by the sweeper, by auth realm.",
	}, []string{"domain"})
)

// Config holds the knobs for one realm's session manager.
type Config struct {
	Domain      domain.AuthDomain
	Secret      string
	IdleTTL     time.Duration
	AbsoluteTTL time.Duration
	// Secure controls the cookie Secure attribute. Off only in development.
	Secure bool
}

// Manager issues, resolves, and destroys sessions for exactly one auth realm.
type Manager struct {
	store       Store
	domain      domain.AuthDomain
	secret      []byte
	idleTTL     time.Duration
	absoluteTTL time.Duration
	secure      bool
	logger      *slog.Logger

	now func() time.Time
}

// NewManager creates a session manager for one realm.
func NewManager(store Store, cfg Config, logger *slog.Logger) (*Manager, error) {
	if !cfg.Domain.Valid() {
		return nil, fmt.Errorf("invalid auth domain %q", cfg.Domain)
	}
	if len(cfg.Secret) < minSecretLen {
		return nil, fmt.Errorf("session secret must be at least %d bytes", minSecretLen)
	}
	if cfg.AbsoluteTTL <= 0 {
		return nil, fmt.Errorf("absolute session TTL must be positive")
	}
	return &Manager{
		store:       store,
		domain:      cfg.Domain,
		secret:      []byte(cfg.Secret),
		idleTTL:     cfg.IdleTTL,
		absoluteTTL: cfg.AbsoluteTTL,
		secure:      cfg.Secure,
		logger:      logger.With(slog.String("component", "session"), slog.String("domain", string(cfg.Domain))),
		now:         time.Now,
	}, nil
}

// Domain returns the auth realm this manager serves.
func (m *Manager) Domain() domain.AuthDomain {
	return m.domain
}

// Issue creates and persists a fresh session for the user.
func (m *Manager) Issue(ctx context.Context, userID string) (*domain.Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	s := &domain.Session{
		ID:           id,
		Domain:       m.domain,
		UserID:       userID,
		IssuedAt:     now,
		LastActivity: now,
		ExpiresAt:    now.Add(m.absoluteTTL),
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	sessionsIssued.WithLabelValues(string(m.domain)).Inc()
	return s, nil
}

// Resolve verifies a cookie value and returns the live session it names.
// Expired or idle sessions are deleted on sight and reported as ErrNotFound,
// so a stale cookie behaves exactly like no cookie.
func (m *Manager) Resolve(ctx context.Context, cookieValue string) (*domain.Session, error) {
	id, err := decodeValue(m.secret, m.domain, cookieValue)
	if err != nil {
		return nil, ErrNotFound
	}

	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.Domain != m.domain {
		return nil, ErrNotFound
	}

	now := m.now().UTC()
	if s.Expired(now) || s.Idle(now, m.idleTTL) {
		if derr := m.store.Delete(ctx, id); derr != nil {
			m.logger.Warn("failed to delete stale session", slog.String("error", derr.Error()))
		}
		return nil, ErrNotFound
	}

	if err := m.store.Touch(ctx, id, now); err != nil {
		m.logger.Warn("failed to touch session", slog.String("error", err.Error()))
	}
	s.LastActivity = now
	return s, nil
}

// Destroy removes a session. Destroying an unknown session is a no-op.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

// Cookie builds the realm's session cookie for an issued session.
func (m *Manager) Cookie(s *domain.Session) *http.Cookie {
	return &http.Cookie{
		Name:     m.domain.SessionCookie(),
		Value:    encodeValue(m.secret, m.domain, s.ID),
		Path:     m.domain.CookiePath(),
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: m.domain.SameSite(),
	}
}

// ClearCookie builds an expired cookie that removes the realm's session
// cookie from the browser. The attributes must match the issuing cookie or
// browsers will not clear it.
func (m *Manager) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     m.domain.SessionCookie(),
		Value:    "",
		Path:     m.domain.CookiePath(),
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: m.domain.SameSite(),
	}
}

// StartSweeper launches a background loop that removes expired sessions at
// the given interval until ctx is canceled.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := m.store.DeleteExpired(ctx, m.now().UTC())
				if err != nil {
					m.logger.Warn("session sweep failed", slog.String("error", err.Error()))
					continue
				}
				if n > 0 {
					sessionsSwept.WithLabelValues(string(m.domain)).Add(float64(n))
					m.logger.Debug("swept expired sessions", slog.Int("count", n))
				}
			}
		}
	}()
}
