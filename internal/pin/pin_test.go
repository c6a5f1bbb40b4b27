package pin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/medusa2112/HealiosHealth-sub005/pkg/errors"
)

func newTestVerifier(t *testing.T) (*Verifier, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	v := NewVerifier(store, 10*time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return v, store
}

func TestGenerateCode_Format(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, CodeLength)
		for _, c := range code {
			assert.True(t, c >= '0' && c <= '9', "code %q must be numeric", code)
		}
		seen[code] = true
	}
	// 200 draws from a million-code space should essentially never collide
	// down to a handful of distinct values.
	assert.Greater(t, len(seen), 150)
}

func TestVerifier_IssueAndVerify(t *testing.T) {
	v, _ := newTestVerifier(t)

	code, err := v.Issue(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.Len(t, code, CodeLength)

	assert.NoError(t, v.Verify(context.Background(), "alice@example.com", code))
}

func TestVerifier_VerifyIsCaseInsensitiveOnEmail(t *testing.T) {
	v, _ := newTestVerifier(t)

	code, err := v.Issue(context.Background(), "Alice@Example.COM")
	require.NoError(t, err)

	assert.NoError(t, v.Verify(context.Background(), "alice@example.com", code))
}

func TestVerifier_SingleUse(t *testing.T) {
	v, _ := newTestVerifier(t)

	code, err := v.Issue(context.Background(), "alice@example.com")
	require.NoError(t, err)

	require.NoError(t, v.Verify(context.Background(), "alice@example.com", code))

	err = v.Verify(context.Background(), "alice@example.com", code)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidCredentials), "replayed pin must fail")
}

func TestVerifier_ReissueInvalidatesPrevious(t *testing.T) {
	v, _ := newTestVerifier(t)

	first, err := v.Issue(context.Background(), "alice@example.com")
	require.NoError(t, err)
	second, err := v.Issue(context.Background(), "alice@example.com")
	require.NoError(t, err)

	if first != second {
		err = v.Verify(context.Background(), "alice@example.com", first)
		assert.Error(t, err, "older pin must be dead after reissue")
	}
	assert.NoError(t, v.Verify(context.Background(), "alice@example.com", second))
}

func TestVerifier_WrongCode(t *testing.T) {
	v, _ := newTestVerifier(t)

	code, err := v.Issue(context.Background(), "alice@example.com")
	require.NoError(t, err)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	err = v.Verify(context.Background(), "alice@example.com", wrong)
	require.Error(t, err)

	// A mismatch must not consume the pin.
	assert.NoError(t, v.Verify(context.Background(), "alice@example.com", code))
}

func TestVerifier_UnknownEmail(t *testing.T) {
	v, _ := newTestVerifier(t)

	err := v.Verify(context.Background(), "nobody@example.com", "123456")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidCredentials))
}

func TestVerifier_Expired(t *testing.T) {
	v, store := newTestVerifier(t)

	code, err := v.Issue(context.Background(), "alice@example.com")
	require.NoError(t, err)

	v.now = func() time.Time { return time.Now().Add(11 * time.Minute) }

	err = v.Verify(context.Background(), "alice@example.com", code)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidCredentials))

	// Expired record is deleted on sight.
	assert.Equal(t, 0, store.Sweep(time.Now().Add(time.Hour).UTC()))
}

func TestVerifier_ConcurrentConsume_OnlyOneWins(t *testing.T) {
	v, _ := newTestVerifier(t)

	code, err := v.Issue(context.Background(), "alice@example.com")
	require.NoError(t, err)

	const goroutines = 10
	var wg sync.WaitGroup
	successes := make(chan struct{}, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v.Verify(context.Background(), "alice@example.com", code) == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	assert.Equal(t, 1, count, "exactly one concurrent verification may win")
}

func TestMemoryStore_Sweep(t *testing.T) {
	store := NewMemoryStore()
	now := time.Now().UTC()

	require.NoError(t, store.Save(context.Background(), "live@example.com", Record{ExpiresAt: now.Add(time.Hour)}, time.Hour))
	require.NoError(t, store.Save(context.Background(), "dead@example.com", Record{ExpiresAt: now.Add(-time.Hour)}, time.Hour))

	assert.Equal(t, 1, store.Sweep(now))
	assert.ErrorIs(t, store.Consume(context.Background(), "dead@example.com", [32]byte{}, now), ErrNotFound)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "alice@example.com", Normalize("  Alice@Example.COM "))
}
