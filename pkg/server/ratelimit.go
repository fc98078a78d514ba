package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"tacticsrpg/pkg/config"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// HTTPRateLimiter enforces a per-IP token bucket over every inbound HTTP
// request (including WebSocket upgrades), independent of the
// per-(user,bucket) sliding window pkg/ratelimit enforces once a frame has
// reached a session actor. This layer exists to keep an unauthenticated or
// abusive client from ever reaching that far.
type HTTPRateLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*rateLimiterEntry

	requestsPerSecond rate.Limit
	burst             int
	cleanupInterval   time.Duration
	maxAge            time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

type rateLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewHTTPRateLimiter builds an HTTPRateLimiter from cfg and starts its
// background cleanup goroutine.
func NewHTTPRateLimiter(cfg *config.Config) *HTTPRateLimiter {
	ctx, cancel := context.WithCancel(context.Background())
	rl := &HTTPRateLimiter{
		limiters:          make(map[string]*rateLimiterEntry),
		requestsPerSecond: rate.Limit(cfg.RateLimitRequestsPerSecond),
		burst:             cfg.RateLimitBurst,
		cleanupInterval:   cfg.RateLimitCleanupInterval,
		maxAge:            cfg.RateLimitCleanupInterval * 5,
		ctx:               ctx,
		cancel:            cancel,
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether a request from ip should proceed.
func (rl *HTTPRateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, exists := rl.limiters[ip]
	if !exists {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(rl.requestsPerSecond, rl.burst), lastAccess: time.Now()}
		rl.limiters[ip] = entry
	} else {
		entry.lastAccess = time.Now()
	}
	return entry.limiter.Allow()
}

func (rl *HTTPRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.ctx.Done():
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *HTTPRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := time.Now()
	for ip, entry := range rl.limiters {
		if now.Sub(entry.lastAccess) > rl.maxAge {
			delete(rl.limiters, ip)
		}
	}
}

// Close stops the background cleanup goroutine.
func (rl *HTTPRateLimiter) Close() {
	if rl.cancel != nil {
		rl.cancel()
	}
}

// RateLimitMiddleware enforces rl over every request, responding 429 with
// a Retry-After header once a client's bucket is empty.
func RateLimitMiddleware(rl *HTTPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl == nil {
				next.ServeHTTP(w, r)
				return
			}
			ip := getClientIP(r)
			if !rl.Allow(ip) {
				getLoggerFromContext(r.Context()).WithFields(logrus.Fields{
					"client_ip": ip, "path": r.URL.Path,
				}).Warn("request rate limited")
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestSizeLimitMiddleware caps request bodies at maxBytes: the handler
// still runs, and its reads of the body fail once they pass the limit.
func RequestSizeLimitMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
