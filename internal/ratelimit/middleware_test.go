package ratelimit

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLimit_PassesUnderLimit(t *testing.T) {
	tr := newTestTracker()
	h := Limit(tr, ClassLogin)(okHandler())

	r := httptest.NewRequest(http.MethodPost, "/api/auth/customer/login", nil)
	r.RemoteAddr = "1.2.3.4:5555"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLimit_RejectsLockedOutIP(t *testing.T) {
	tr := newTestTracker()
	for i := 0; i < 3; i++ {
		tr.Fail(ClassLogin, "1.2.3.4")
	}

	h := Limit(tr, ClassLogin)(okHandler())

	r := httptest.NewRequest(http.MethodPost, "/api/auth/customer/login", nil)
	r.RemoteAddr = "1.2.3.4:5555"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"), "429 must carry Retry-After")
}

func TestLimit_DoesNotCountRequests(t *testing.T) {
	tr := newTestTracker()
	h := Limit(tr, ClassLogin)(okHandler())

	for i := 0; i < 10; i++ {
		r := httptest.NewRequest(http.MethodPost, "/api/auth/customer/login", nil)
		r.RemoteAddr = "1.2.3.4:5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestLimitRequests_CountsEveryRequest(t *testing.T) {
	tr := NewTracker(map[Class]Policy{
		ClassPayment: {Window: time.Hour, MaxFailures: 2},
	}, discardLogger())
	h := LimitRequests(tr, ClassPayment)(okHandler())

	for i := 0; i < 2; i++ {
		r := httptest.NewRequest(http.MethodPost, "/api/payment", nil)
		r.RemoteAddr = "1.2.3.4:5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		require.Equal(t, http.StatusOK, w.Code)
	}

	r := httptest.NewRequest(http.MethodPost, "/api/payment", nil)
	r.RemoteAddr = "1.2.3.4:5555"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestThrottle_AllowsBurstThenRejects(t *testing.T) {
	h := Throttle(1, 2, discardLogger())(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodGet, "/api/products", nil)
		r.RemoteAddr = "1.2.3.4:5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
}

func TestThrottle_IPsIndependent(t *testing.T) {
	h := Throttle(1, 1, discardLogger())(okHandler())

	r1 := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	r1.RemoteAddr = "1.2.3.4:5555"
	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, r1)
	require.Equal(t, http.StatusOK, w1.Code)

	// Same IP again: bucket drained.
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, r1)
	require.Equal(t, http.StatusTooManyRequests, w2.Code)

	// Other IP: fresh bucket.
	r3 := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	r3.RemoteAddr = "9.9.9.9:5555"
	w3 := httptest.NewRecorder()
	h.ServeHTTP(w3, r3)
	assert.Equal(t, http.StatusOK, w3.Code)
}

func TestVisitorStore_Cleanup(t *testing.T) {
	store := newVisitorStore(1, 1, time.Minute)

	base := time.Now()
	store.nowFunc = func() time.Time { return base }
	store.getVisitor("1.2.3.4")
	store.getVisitor("5.6.7.8")
	require.Equal(t, 2, store.len())

	store.nowFunc = func() time.Time { return base.Add(2 * time.Minute) }
	store.cleanup()
	assert.Equal(t, 0, store.len())
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{name: "remote addr", remoteAddr: "10.0.0.1:4321", want: "10.0.0.1"},
		{name: "x-forwarded-for single", remoteAddr: "10.0.0.1:4321", xff: "203.0.113.7", want: "203.0.113.7"},
		{name: "x-forwarded-for chain", remoteAddr: "10.0.0.1:4321", xff: "203.0.113.7, 70.41.3.18", want: "203.0.113.7"},
		{name: "x-forwarded-for garbage falls through", remoteAddr: "10.0.0.1:4321", xff: "not-an-ip", want: "10.0.0.1"},
		{name: "x-real-ip", remoteAddr: "10.0.0.1:4321", xri: "198.51.100.2", want: "198.51.100.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, ClientIP(r))
		})
	}
}
