package ratelimit

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Bucket names the admission buckets the runtime recognizes.
type Bucket string

const (
	BucketAction Bucket = "action"
	BucketChat   Bucket = "chat"
	BucketDM     Bucket = "dm"
)

// Decision is the result of an admission check.
type Decision struct {
	Allowed      bool
	RetryAfterMS int64
}

const windowSeconds = 60

// window is a ring of second-granularity counters covering the trailing
// windowSeconds; epoch second s is counted in slot s mod windowSeconds,
// tagged with the epoch second it was last written so stale slots read as zero without being actively cleared.
type window struct {
	counts [windowSeconds]int
	stamps [windowSeconds]int64
}

func (w *window) add(now int64) {
	slot := now % windowSeconds
	if w.stamps[slot] != now {
		w.stamps[slot] = now
		w.counts[slot] = 0
	}
	w.counts[slot]++
}

// sum returns the total count in (now-windowSeconds, now] and the epoch
// second of the oldest still-live sample, used to compute retry_after_ms.
func (w *window) sum(now int64) (total int, oldestLive int64) {
	oldestLive = now
	for i := 0; i < windowSeconds; i++ {
		sec := now - int64(i)
		slot := sec % windowSeconds
		if w.stamps[slot] == sec {
			total += w.counts[slot]
			if sec < oldestLive {
				oldestLive = sec
			}
		}
	}
	return total, oldestLive
}

type key struct {
	userID string
	bucket Bucket
}

// Limiter enforces a per-(user, bucket) sliding-window admission limit. It
// is safe for concurrent use; state is per-process and not replicated.
type Limiter struct {
	mu       sync.Mutex
	windows  map[key]*window
	limits   map[Bucket]int
	lastSeen map[key]time.Time
}

// Limits configures the per-minute ceiling for each recognized bucket.
type Limits struct {
	ActionPerMinute int
	ChatPerMinute   int
	DMPerMinute     int
}

// New constructs a Limiter from the configured per-bucket ceilings.
func New(limits Limits) *Limiter {
	return &Limiter{
		windows: make(map[key]*window),
		limits: map[Bucket]int{
			BucketAction: limits.ActionPerMinute,
			BucketChat:   limits.ChatPerMinute,
			BucketDM:     limits.DMPerMinute,
		},
		lastSeen: make(map[key]time.Time),
	}
}

// Allow admits or denies one request for (userID, bucket) at the current
// instant. A denial is logged at Warn with the bucket and window
// utilization for abuse telemetry.
func (l *Limiter) Allow(userID string, bucket Bucket) Decision {
	return l.allowAt(userID, bucket, time.Now())
}

func (l *Limiter) allowAt(userID string, bucket Bucket, now time.Time) Decision {
	limit, ok := l.limits[bucket]
	if !ok || limit <= 0 {
		return Decision{Allowed: true}
	}

	k := key{userID: userID, bucket: bucket}
	nowSec := now.Unix()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, exists := l.windows[k]
	if !exists {
		w = &window{}
		l.windows[k] = w
	}
	l.lastSeen[k] = now

	total, oldestLive := w.sum(nowSec)
	if total >= limit {
		retryAfter := (oldestLive + windowSeconds + 1 - nowSec) * 1000
		if retryAfter < 0 {
			retryAfter = 0
		}
		logrus.WithFields(logrus.Fields{
			"user_id":     userID,
			"bucket":      bucket,
			"utilization": total,
			"limit":       limit,
		}).Warn("rate limit admission denied")
		return Decision{Allowed: false, RetryAfterMS: retryAfter}
	}

	w.add(nowSec)
	return Decision{Allowed: true}
}

// Reap drops windows idle for longer than maxAge, preventing unbounded
// growth from users who stop sending requests.
func (l *Limiter) Reap(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for k, seen := range l.lastSeen {
		if seen.Before(cutoff) {
			delete(l.windows, k)
			delete(l.lastSeen, k)
			removed++
		}
	}
	return removed
}

// RunReaper starts a background goroutine that calls Reap on interval until
// stop is closed.
func (l *Limiter) RunReaper(interval, maxAge time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if n := l.Reap(maxAge); n > 0 {
					logrus.WithField("reaped", n).Debug("rate limiter reaped idle windows")
				}
			}
		}
	}()
}
