package analyses

import (
	"sync"
	"time"
)

// pollLimiter caps how often a single caller may poll a single analysis.
// Clients are expected to poll every 2 seconds; anything much faster is a
// misbehaving loop and gets a 429.
type pollLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	maxHits  int
	buckets  map[string]*pollBucket
	lastScan time.Time
}

type pollBucket struct {
	windowStart time.Time
	hits        int
}

func newPollLimiter(window time.Duration, maxHits int) *pollLimiter {
	return &pollLimiter{
		window:  window,
		maxHits: maxHits,
		buckets: make(map[string]*pollBucket),
	}
}

// Allow reports whether the caller identified by key may poll now.
func (l *pollLimiter) Allow(key string) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.scanStale(now)

	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) >= l.window {
		l.buckets[key] = &pollBucket{windowStart: now, hits: 1}
		return true
	}
	b.hits++
	return b.hits <= l.maxHits
}

// scanStale drops buckets that have been idle for several windows. Runs at
// most once per window to keep Allow cheap.
func (l *pollLimiter) scanStale(now time.Time) {
	if now.Sub(l.lastScan) < l.window {
		return
	}
	l.lastScan = now
	cutoff := now.Add(-3 * l.window)
	for key, b := range l.buckets {
		if b.windowStart.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
