package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/medusa2112/HealiosHealth-sub005/pkg/errors"
)

var rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "auth_rate_limited_total",
	Help: "Total number of attempts rejected by the rate limiter, by class.",
}, []string{"class"})

// entry tracks the strikes for one (class, ip) key inside its current window.
type entry struct {
	failures    int
	windowStart time.Time
}

// Tracker keeps sliding-window failure counters per client IP per class.
// Failures are recorded by the caller (a failed login, an invalid PIN); a
// successful attempt clears the counter so legitimate users who eventually
// remember their password are not locked out.
type Tracker struct {
	mu       sync.Mutex
	entries  map[string]*entry
	policies map[Class]Policy
	logger   *slog.Logger

	nowFunc   func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewTracker creates a tracker with the given per-class policies. Classes
// without a policy are unlimited.
func NewTracker(policies map[Class]Policy, logger *slog.Logger) *Tracker {
	return &Tracker{
		entries:   make(map[string]*entry),
		policies:  policies,
		logger:    logger.With(slog.String("component", "ratelimit")),
		nowFunc:   time.Now,
		sleepFunc: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func key(c Class, ip string) string {
	return string(c) + "|" + ip
}

// Check reports whether the key is currently locked out. It returns a
// RateLimited error carrying the window reset time when the class budget is
// exhausted, and nil otherwise. Expired windows are reset on sight.
func (t *Tracker) Check(c Class, ip string) error {
	p, ok := t.policies[c]
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[key(c, ip)]
	if !ok {
		return nil
	}

	now := t.nowFunc()
	if now.Sub(e.windowStart) >= p.Window {
		delete(t.entries, key(c, ip))
		return nil
	}

	if e.failures >= p.MaxFailures {
		rateLimited.WithLabelValues(string(c)).Inc()
		t.logger.Warn("rate limit lockout",
			slog.String("class", string(c)),
			slog.String("ip", ip),
			slog.Int("failures", e.failures),
		)
		return apperrors.RateLimited(e.windowStart.Add(p.Window))
	}

	return nil
}

// Fail records one strike against the key and returns the updated count. The
// window starts at the first strike.
func (t *Tracker) Fail(c Class, ip string) int {
	if _, ok := t.policies[c]; !ok {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	k := key(c, ip)
	now := t.nowFunc()
	e, ok := t.entries[k]
	if !ok || now.Sub(e.windowStart) >= t.policies[c].Window {
		e = &entry{windowStart: now}
		t.entries[k] = e
	}
	e.failures++
	return e.failures
}

// Clear wipes the counter for the key. Called after a successful attempt.
func (t *Tracker) Clear(c Class, ip string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key(c, ip))
}

// Delay blocks for the progressive penalty accrued by the key: BaseDelay
// times the strike count, capped at MaxDelay. A key with no strikes returns
// immediately. Cancellation of ctx aborts the wait.
func (t *Tracker) Delay(ctx context.Context, c Class, ip string) error {
	p, ok := t.policies[c]
	if !ok || p.BaseDelay <= 0 {
		return nil
	}

	t.mu.Lock()
	failures := 0
	if e, ok := t.entries[key(c, ip)]; ok && t.nowFunc().Sub(e.windowStart) < p.Window {
		failures = e.failures
	}
	t.mu.Unlock()

	if failures == 0 {
		return nil
	}

	d := time.Duration(failures) * p.BaseDelay
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return t.sleepFunc(ctx, d)
}

// Sweep removes entries whose window has elapsed and returns how many were
// dropped.
func (t *Tracker) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.nowFunc()
	n := 0
	for k, e := range t.entries {
		c, _, _ := splitKey(k)
		p, ok := t.policies[c]
		if !ok || now.Sub(e.windowStart) >= p.Window {
			delete(t.entries, k)
			n++
		}
	}
	return n
}

func splitKey(k string) (Class, string, bool) {
	for i := 0; i < len(k); i++ {
		if k[i] == '|' {
			return Class(k[:i]), k[i+1:], true
		}
	}
	return "", "", false
}

// StartSweeper launches a background loop that sweeps stale counters at the
// given interval until ctx is canceled.
func (t *Tracker) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := t.Sweep(); n > 0 {
					t.logger.Debug("swept stale rate limit counters", slog.Int("count", n))
				}
			}
		}
	}()
}
