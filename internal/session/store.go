// Package session implements opaque server-side sessions. Each auth realm
// (customer, admin) gets its own Manager bound to its own Store instance, so
// a session ID issued in one realm can never resolve in the other.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/medusa2112/HealiosHealth-sub005/internal/domain"
)

// ErrNotFound is returned when a session ID does not resolve to a live record.
var ErrNotFound = errors.New("session not found")

// Store persists session records for a single auth realm.
type Store interface {
	Create(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	Touch(ctx context.Context, id string, lastActivity time.Time) error
	// Delete removes a session. Deleting a missing session is not an error.
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes sessions past their absolute expiry and returns
	// how many were removed. Backends with native TTLs may return (0, nil).
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
