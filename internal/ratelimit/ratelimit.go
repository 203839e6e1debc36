// Package ratelimit provides a per-user token bucket limiter for
// conversational turns.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	cleanupInterval = 5 * time.Minute
	staleThreshold  = 10 * time.Minute
)

// Limiter tracks one token bucket per user key. Cleanup of stale
// entries happens inline during Allow calls.
type Limiter struct {
	mu          sync.Mutex
	buckets     map[string]*bucket
	limit       rate.Limit
	burst       int
	lastCleanup time.Time

	// now is replaceable in tests.
	now func() time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the time source. Tests only.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter allowing burst requests immediately per key,
// refilled over window. A non-positive window disables refill entirely
// beyond the initial burst.
func New(requests int, window time.Duration, opts ...Option) *Limiter {
	limit := rate.Inf
	if window > 0 && requests > 0 {
		limit = rate.Limit(float64(requests) / window.Seconds())
	}
	l := &Limiter{
		buckets: make(map[string]*bucket),
		limit:   limit,
		burst:   requests,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.lastCleanup = l.now()
	return l
}

// Allow reports whether one more request from key may proceed now.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if now.Sub(l.lastCleanup) > cleanupInterval {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > staleThreshold {
				delete(l.buckets, k)
			}
		}
		l.lastCleanup = now
	}

	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
