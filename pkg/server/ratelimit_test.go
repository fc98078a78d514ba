package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tacticsrpg/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRateLimitConfig() *config.Config {
	return &config.Config{
		RateLimitRequestsPerSecond: 2,
		RateLimitBurst:             2,
		RateLimitCleanupInterval:   time.Hour,
	}
}

func TestHTTPRateLimiterAllowsUpToBurstThenBlocks(t *testing.T) {
	rl := NewHTTPRateLimiter(testRateLimitConfig())
	defer rl.Close()

	assert.True(t, rl.Allow("1.2.3.4"))
	assert.True(t, rl.Allow("1.2.3.4"))
	assert.False(t, rl.Allow("1.2.3.4"), "burst exhausted")
}

func TestHTTPRateLimiterTracksIPsIndependently(t *testing.T) {
	rl := NewHTTPRateLimiter(testRateLimitConfig())
	defer rl.Close()

	assert.True(t, rl.Allow("1.1.1.1"))
	assert.True(t, rl.Allow("1.1.1.1"))
	assert.False(t, rl.Allow("1.1.1.1"))

	assert.True(t, rl.Allow("2.2.2.2"), "a different IP has its own bucket")
}

func TestHTTPRateLimiterCleanupEvictsStaleEntries(t *testing.T) {
	rl := NewHTTPRateLimiter(&config.Config{
		RateLimitRequestsPerSecond: 2,
		RateLimitBurst:             1,
		RateLimitCleanupInterval:   time.Hour,
	})
	defer rl.Close()

	require.True(t, rl.Allow("3.3.3.3"))
	rl.mu.Lock()
	entry := rl.limiters["3.3.3.3"]
	entry.lastAccess = time.Now().Add(-rl.maxAge - time.Minute)
	rl.mu.Unlock()

	rl.cleanup()

	rl.mu.RLock()
	_, exists := rl.limiters["3.3.3.3"]
	rl.mu.RUnlock()
	assert.False(t, exists, "stale entry should be evicted")
}

func TestRateLimitMiddlewareRejectsOverLimitRequests(t *testing.T) {
	rl := NewHTTPRateLimiter(&config.Config{
		RateLimitRequestsPerSecond: 1,
		RateLimitBurst:             1,
		RateLimitCleanupInterval:   time.Hour,
	})
	defer rl.Close()

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mw := RateLimitMiddleware(rl)(RequestIDMiddleware(next))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "5.5.5.5:1111"

	w1 := httptest.NewRecorder()
	mw.ServeHTTP(w1, req)
	assert.Equal(t, http.StatusOK, w1.Code)

	w2 := httptest.NewRecorder()
	mw.ServeHTTP(w2, req)
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)
	assert.Equal(t, "1", w2.Header().Get("Retry-After"))
}

func TestRateLimitMiddlewareNilLimiterAllowsAll(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	mw := RateLimitMiddleware(nil)(next)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	mw.ServeHTTP(w, req)

	assert.True(t, called)
}

func TestRequestSizeLimitMiddlewareCapsBody(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := http.MaxBytesReader(w, r.Body, 4).Read(make([]byte, 16))
		if err != nil {
			http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
			return
		}
	})
	mw := RequestSizeLimitMiddleware(4)(next)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("way too many bytes"))
	w := httptest.NewRecorder()
	mw.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
