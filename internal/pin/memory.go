package pin

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"
)

// MemoryStore is an in-process PIN store for development and single-instance
// deployments. All operations on one email are serialized by the store lock,
// so verify-and-delete is atomic.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory PIN store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

// Save stores a record, replacing any live PIN for the email.
func (s *MemoryStore) Save(_ context.Context, email string, rec Record, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[email] = rec
	return nil
}

// Consume validates and deletes the record under one lock acquisition.
func (s *MemoryStore) Consume(_ context.Context, email string, providedHash [32]byte, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[email]
	if !ok {
		return ErrNotFound
	}
	if !now.Before(rec.ExpiresAt) {
		delete(s.records, email)
		return ErrExpired
	}
	if subtle.ConstantTimeCompare(rec.CodeHash[:], providedHash[:]) != 1 {
		return ErrMismatch
	}
	delete(s.records, email)
	return nil
}

// Sweep removes expired records and returns how many were dropped.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for email, rec := range s.records {
		if !now.Before(rec.ExpiresAt) {
			delete(s.records, email)
			n++
		}
	}
	return n
}

// StartSweeper launches a background loop that drops expired records at the
// given interval until ctx is canceled.
func (s *MemoryStore) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(time.Now().UTC())
			}
		}
	}()
}
