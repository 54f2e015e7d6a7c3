// Package ratelimit implements the in-memory token-bucket limiter the
// gateway applies per API key.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// sweepInterval is how often idle buckets are dropped.
	sweepInterval = 5 * time.Minute
	// idleWindows is how many refill windows a bucket can sit untouched
	// before the sweep forgets it.
	idleWindows = 2
)

// bucket is the state for one key: how many tokens remain and when they
// were last refilled.
type bucket struct {
	tokens   float64
	refilled time.Time
}

// take refills the bucket for the time elapsed since the last call, then
// tries to consume one token.
func (b *bucket) take(now time.Time, limit int, window time.Duration) bool {
	b.tokens += now.Sub(b.refilled).Seconds() * float64(limit) / window.Seconds()
	b.tokens = min(b.tokens, float64(limit))
	b.refilled = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Limiter hands out tokens per key. Each key's bucket holds its configured
// limit and refills continuously at limit-per-window, so a key that burst
// through its allowance regains capacity gradually rather than all at once
// on a window boundary.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	window  time.Duration
	done    chan struct{}
}

// New creates a Limiter with the given refill window and starts its
// background sweep of idle buckets.
func New(window time.Duration) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		window:  window,
		done:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Allow consumes one token from key's bucket, reporting false when the
// bucket is empty. limit is the key's own allowance per window; it is
// passed per call because each API key row carries its own rate_limit.
func (l *Limiter) Allow(key string, limit int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b := l.buckets[key]
	if b == nil {
		// A new key starts with a full bucket, minus this request.
		l.buckets[key] = &bucket{tokens: float64(limit - 1), refilled: now}
		return true
	}
	return b.take(now, limit, l.window)
}

// Window returns the refill window, for Retry-After headers.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Reset drops the bucket for key, restoring its full allowance.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Size returns the number of keys currently tracked.
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Close stops the background sweep.
func (l *Limiter) Close() {
	close(l.done)
}

func (l *Limiter) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.dropIdle(time.Now().Add(-idleWindows * l.window))
		}
	}
}

// dropIdle forgets buckets untouched since cutoff. An idle bucket is
// indistinguishable from a full one, so forgetting it is free.
func (l *Limiter) dropIdle(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.refilled.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}
