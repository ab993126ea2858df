// Package ratelimit counts events per key in fixed windows. The API uses it
// to lock out clients that keep presenting bad API keys.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"grimm.is/ngxweb/internal/clock"
)

// Limiter manages one bucket per key. Every bucket holds limit tokens and is
// refilled in full once interval has passed since its last refill.
type Limiter struct {
	limit    int
	interval time.Duration
	clock    clock.Clock

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	tokens   int
	lastFill time.Time
}

// NewLimiter creates a limiter allowing limit events per interval and key.
// A nil clk uses the wall clock.
func NewLimiter(limit int, interval time.Duration, clk clock.Clock) *Limiter {
	if limit < 1 {
		limit = 1
	}
	return &Limiter{
		limit:    limit,
		interval: interval,
		clock:    clock.Or(clk),
		buckets:  make(map[string]*bucket),
	}
}

// get returns the refilled bucket for key. Callers hold l.mu.
func (l *Limiter) get(key string, now time.Time) *bucket {
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: l.limit, lastFill: now}
		l.buckets[key] = b
		return b
	}
	if now.Sub(b.lastFill) >= l.interval {
		b.tokens = l.limit
		b.lastFill = now
	}
	return b
}

// Allow takes a token for key and reports whether one was available.
func (l *Limiter) Allow(key string) bool {
	return l.AllowN(key, 1)
}

// AllowN takes n tokens for key, or none when fewer than n remain.
func (l *Limiter) AllowN(key string, n int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.get(key, l.clock.Now())
	if b.tokens < n {
		return false
	}
	b.tokens -= n
	return true
}

// Exhausted reports whether key has no tokens left, without taking one.
func (l *Limiter) Exhausted(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		return false
	}
	now := l.clock.Now()
	if now.Sub(b.lastFill) >= l.interval {
		return false
	}
	return b.tokens <= 0
}

// RetryAfter is the time until key's bucket refills; zero when key still
// has tokens.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || b.tokens > 0 {
		return 0
	}
	wait := l.interval - l.clock.Since(b.lastFill)
	if wait < 0 {
		return 0
	}
	return wait
}

// Reset clears the bucket for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// CleanupExpired drops buckets not refilled within maxAge.
func (l *Limiter) CleanupExpired(maxAge time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastFill) > maxAge {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// StartCleanup runs CleanupExpired every interval until ctx is done.
func (l *Limiter) StartCleanup(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.CleanupExpired(maxAge)
			}
		}
	}()
}
