package domain

import (
	"time"
)

// Session is an opaque server-side session record. The ID is the only thing
// the browser ever sees; every request resolves it back to this record.
type Session struct {
	ID           string     `json:"id"`
	Domain       AuthDomain `json:"domain"`
	UserID       string     `json:"user_id"`
	IssuedAt     time.Time  `json:"issued_at"`
	LastActivity time.Time  `json:"last_activity"`
	ExpiresAt    time.Time  `json:"expires_at"`
}

// Expired reports whether the session has passed its absolute expiry.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Idle reports whether the session has been inactive longer than idleTTL.
func (s *Session) Idle(now time.Time, idleTTL time.Duration) bool {
	return idleTTL > 0 && now.Sub(s.LastActivity) > idleTTL
}

// Principal is the authenticated identity attached to a request after the
// session cookie has been resolved and verified.
type Principal struct {
	UserID    string     `json:"user_id"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	Domain    AuthDomain `json:"domain"`
	SessionID string     `json:"-"`
}
