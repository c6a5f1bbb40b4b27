// Package pin implements single-use numeric login PINs. Codes are short
// lived, stored only as SHA-256 hashes, and consumed atomically on first
// successful verification. Issuing a new PIN replaces any live one, so at
// most one PIN per email is valid at a time.
package pin

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	apperrors "github.com/medusa2112/HealiosHealth-sub005/pkg/errors"
)

// CodeLength is the number of digits in a login PIN.
const CodeLength = 6

var codeSpace = big.NewInt(1_000_000)

// Store errors. The Verifier maps these onto the API error taxonomy.
var (
	ErrNotFound = errors.New("pin not found")
	ErrExpired  = errors.New("pin expired")
	ErrMismatch = errors.New("pin mismatch")
)

// Record is a stored PIN: the hash of the code, never the code itself.
type Record struct {
	CodeHash  [32]byte  `json:"code_hash"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Store persists PIN records keyed by normalized email.
type Store interface {
	// Save stores a record, replacing any live PIN for the email.
	Save(ctx context.Context, email string, rec Record, ttl time.Duration) error
	// Consume validates the provided hash against the stored record and
	// deletes it on success, atomically: two concurrent verifications of
	// the same PIN cannot both succeed. A mismatch leaves the record in
	// place; an expired record is deleted on sight.
	Consume(ctx context.Context, email string, providedHash [32]byte, now time.Time) error
}

// Verifier issues and verifies login PINs against a Store.
type Verifier struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger

	now func() time.Time
}

// NewVerifier creates a PIN verifier. ttl bounds how long an issued PIN
// stays valid.
func NewVerifier(store Store, ttl time.Duration, logger *slog.Logger) *Verifier {
	return &Verifier{
		store:  store,
		ttl:    ttl,
		logger: logger.With(slog.String("component", "pin")),
		now:    time.Now,
	}
}

// Issue generates a fresh PIN for the email and stores its hash. The clear
// code is returned exactly once, for delivery; it is never persisted.
func (v *Verifier) Issue(ctx context.Context, email string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}

	now := v.now().UTC()
	rec := Record{
		CodeHash:  sha256.Sum256([]byte(code)),
		IssuedAt:  now,
		ExpiresAt: now.Add(v.ttl),
	}
	if err := v.store.Save(ctx, Normalize(email), rec, v.ttl); err != nil {
		return "", fmt.Errorf("save pin: %w", err)
	}
	return code, nil
}

// Verify checks a submitted PIN. On success the PIN is consumed and cannot
// be used again.
func (v *Verifier) Verify(ctx context.Context, email, code string) error {
	err := v.store.Consume(ctx, Normalize(email), sha256.Sum256([]byte(code)), v.now().UTC())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return apperrors.PinNotFound()
	case errors.Is(err, ErrExpired):
		return apperrors.PinExpired()
	case errors.Is(err, ErrMismatch):
		return apperrors.PinMismatch()
	default:
		return apperrors.Internal(err)
	}
}

// Normalize canonicalizes an email for use as a PIN key.
func Normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateCode returns a zero-padded random numeric code. crypto/rand keeps
// the code unpredictable; math/rand would be guessable under load.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate pin: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n), nil
}
