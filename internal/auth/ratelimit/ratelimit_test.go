package ratelimit

import (
	"testing"
	"time"
)

// newStalled returns a limiter without the background cleanup goroutine so
// tests control all state directly.
func newStalled(window time.Duration) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		window:  window,
	}
}

// TestAllowConsumesTokens verifies a key is admitted exactly limit times
// within a window with no refill.
func TestAllowConsumesTokens(t *testing.T) {
	l := newStalled(time.Minute)

	for i := 0; i < 5; i++ {
		if !l.Allow("key-1", 5) {
			t.Fatalf("request %d denied, want first 5 allowed", i+1)
		}
	}
	if l.Allow("key-1", 5) {
		t.Error("6th request allowed, want denied")
	}
}

// TestAllowKeysIndependent verifies exhausting one key does not affect
// another.
func TestAllowKeysIndependent(t *testing.T) {
	l := newStalled(time.Minute)

	for i := 0; i < 3; i++ {
		l.Allow("busy", 3)
	}
	if l.Allow("busy", 3) {
		t.Error("exhausted key allowed")
	}
	if !l.Allow("idle", 3) {
		t.Error("fresh key denied")
	}
}

// TestAllowRefillsOverTime verifies tokens return proportionally to
// elapsed time.
func TestAllowRefillsOverTime(t *testing.T) {
	l := newStalled(time.Minute)

	for i := 0; i < 60; i++ {
		l.Allow("key-1", 60)
	}
	if l.Allow("key-1", 60) {
		t.Fatal("request allowed with empty bucket")
	}

	// Simulate 2 seconds of elapsed time: 60/min refills 1 token per second.
	l.mu.Lock()
	l.buckets["key-1"].refilled = time.Now().Add(-2 * time.Second)
	l.mu.Unlock()

	if !l.Allow("key-1", 60) {
		t.Error("request denied after refill window")
	}
	if !l.Allow("key-1", 60) {
		t.Error("second refilled token missing")
	}
	if l.Allow("key-1", 60) {
		t.Error("third request allowed, want only ~2 tokens refilled")
	}
}

// TestRefillCapsAtLimit verifies a long-idle bucket does not accumulate
// more than its limit.
func TestRefillCapsAtLimit(t *testing.T) {
	l := newStalled(time.Minute)

	l.Allow("key-1", 2)
	l.mu.Lock()
	l.buckets["key-1"].refilled = time.Now().Add(-time.Hour)
	l.mu.Unlock()

	for i := 0; i < 2; i++ {
		if !l.Allow("key-1", 2) {
			t.Fatalf("request %d denied after long idle", i+1)
		}
	}
	if l.Allow("key-1", 2) {
		t.Error("3rd request allowed, want bucket capped at limit 2")
	}
}

// TestReset verifies clearing a key restores full capacity.
func TestReset(t *testing.T) {
	l := newStalled(time.Minute)

	l.Allow("key-1", 1)
	if l.Allow("key-1", 1) {
		t.Fatal("second request allowed before reset")
	}
	l.Reset("key-1")
	if !l.Allow("key-1", 1) {
		t.Error("request denied after reset")
	}
}

// TestSize verifies the tracked-key count.
func TestSize(t *testing.T) {
	l := newStalled(time.Minute)
	l.Allow("a", 10)
	l.Allow("b", 10)
	l.Allow("a", 10)
	if got := l.Size(); got != 2 {
		t.Errorf("Size = %d, want 2", got)
	}
}

// TestDropIdle verifies the sweep forgets stale buckets and keeps active
// ones.
func TestDropIdle(t *testing.T) {
	l := newStalled(time.Minute)
	l.Allow("stale", 10)
	l.Allow("active", 10)

	l.mu.Lock()
	l.buckets["stale"].refilled = time.Now().Add(-time.Hour)
	l.mu.Unlock()

	l.dropIdle(time.Now().Add(-idleWindows * time.Minute))

	if got := l.Size(); got != 1 {
		t.Fatalf("Size after sweep = %d, want 1", got)
	}
	l.mu.Lock()
	_, kept := l.buckets["active"]
	l.mu.Unlock()
	if !kept {
		t.Error("active bucket swept, want kept")
	}
}
