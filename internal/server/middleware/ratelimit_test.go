package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/handsync/internal/server/handlers"
	"github.com/iudanet/handsync/pkg/api"
)

// fakeNow управляемые часы для limiter
type fakeNow struct {
	t  time.Time
	mu sync.Mutex
}

func (f *fakeNow) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeNow) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

func newTestLimiter(t *testing.T, rate int, window time.Duration) (*RateLimiter, *fakeNow) {
	t.Helper()

	clock := &fakeNow{t: time.Unix(1_700_000_000, 0)}
	limiter := NewRateLimiter(rate, window, setupTestLogger())
	limiter.now = clock.now
	t.Cleanup(limiter.Stop)

	return limiter, clock
}

func TestRateLimiter_Allow(t *testing.T) {
	t.Run("requests within limit are allowed", func(t *testing.T) {
		limiter, _ := newTestLimiter(t, 5, time.Minute)

		for i := 0; i < 5; i++ {
			allowed, _ := limiter.Allow("device-a")
			assert.True(t, allowed, fmt.Sprintf("request %d should be allowed", i+1))
		}
	})

	t.Run("requests over limit are denied with retry hint", func(t *testing.T) {
		limiter, clock := newTestLimiter(t, 3, time.Minute)

		for i := 0; i < 3; i++ {
			allowed, _ := limiter.Allow("device-a")
			require.True(t, allowed)
		}

		clock.advance(20 * time.Second)
		allowed, retryAfter := limiter.Allow("device-a")
		assert.False(t, allowed)
		assert.Equal(t, 40*time.Second, retryAfter)
	})

	t.Run("different keys are tracked separately", func(t *testing.T) {
		limiter, _ := newTestLimiter(t, 1, time.Minute)

		allowed, _ := limiter.Allow("device-a")
		assert.True(t, allowed)
		allowed, _ = limiter.Allow("device-a")
		assert.False(t, allowed)

		allowed, _ = limiter.Allow("device-b")
		assert.True(t, allowed)
	})

	t.Run("tokens refill after window", func(t *testing.T) {
		limiter, clock := newTestLimiter(t, 2, time.Minute)

		for i := 0; i < 2; i++ {
			allowed, _ := limiter.Allow("device-a")
			require.True(t, allowed)
		}

		clock.advance(time.Minute)

		allowed, _ := limiter.Allow("device-a")
		assert.True(t, allowed, "tokens should be refilled")
	})
}

func TestRateLimiter_CleanupOldBuckets(t *testing.T) {
	limiter, clock := newTestLimiter(t, 1, time.Minute)

	limiter.Allow("old")
	clock.advance(90 * time.Second)
	limiter.Allow("fresh")
	clock.advance(40 * time.Second)

	limiter.cleanupOldBuckets()

	limiter.mu.RLock()
	defer limiter.mu.RUnlock()
	assert.NotContains(t, limiter.buckets, "old")
	assert.Contains(t, limiter.buckets, "fresh")
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	limiter := NewRateLimiter(1, time.Minute, setupTestLogger())
	limiter.Stop()
	assert.NotPanics(t, limiter.Stop)
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter, _ := newTestLimiter(t, 2, time.Minute)

	handler := RateLimitMiddleware(limiter, ByClientIP)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	var resp api.ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Contains(t, resp.Message, "rate limit exceeded")

	// Другой IP не затронут
	req = httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestByDevice(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	assert.Equal(t, "192.168.1.1:12345", ByDevice(req), "falls back to IP without identity")

	ctx := handlers.WithIdentity(context.Background(), "user1", "device-a")
	assert.Equal(t, "user1/device-a", ByDevice(req.WithContext(ctx)))
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{name: "remote addr", remoteAddr: "192.168.1.1:12345", want: "192.168.1.1:12345"},
		{name: "x-real-ip", remoteAddr: "10.0.0.1:1", xri: "203.0.113.7", want: "203.0.113.7"},
		{name: "single forwarded", remoteAddr: "10.0.0.1:1", xff: "203.0.113.8", want: "203.0.113.8"},
		{name: "forwarded chain", remoteAddr: "10.0.0.1:1", xff: "203.0.113.9, 10.0.0.2", xri: "198.51.100.1", want: "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}
