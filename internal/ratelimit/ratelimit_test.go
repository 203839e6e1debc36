package ratelimit

import (
	"testing"
	"time"
)

// fakeClock advances only when told to.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestAllowWithinBurst(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := New(3, time.Minute, WithClock(clock.now))

	for i := range 3 {
		if !l.Allow("user-1") {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	if l.Allow("user-1") {
		t.Error("request beyond burst allowed")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := New(1, time.Minute, WithClock(clock.now))

	if !l.Allow("user-1") {
		t.Fatal("first request for user-1 denied")
	}
	if l.Allow("user-1") {
		t.Error("second request for user-1 allowed")
	}
	if !l.Allow("user-2") {
		t.Error("user-2 affected by user-1's bucket")
	}
}

func TestRefillOverWindow(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := New(2, time.Minute, WithClock(clock.now))

	l.Allow("user-1")
	l.Allow("user-1")
	if l.Allow("user-1") {
		t.Fatal("bucket not exhausted")
	}

	// Half the window refills one token.
	clock.advance(30 * time.Second)
	if !l.Allow("user-1") {
		t.Error("token not refilled after half window")
	}
	if l.Allow("user-1") {
		t.Error("extra token granted")
	}
}

func TestStaleBucketsCleaned(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := New(5, time.Minute, WithClock(clock.now))

	l.Allow("user-1")
	l.Allow("user-2")
	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", l.Len())
	}

	// user-2 stays active past the stale threshold; user-1 goes quiet.
	clock.advance(staleThreshold + time.Second)
	l.Allow("user-2")
	clock.advance(cleanupInterval + time.Second)
	l.Allow("user-2")

	if l.Len() != 1 {
		t.Errorf("Len() = %d after cleanup, want 1", l.Len())
	}
}

func TestZeroWindowNeverRefuses(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	l := New(0, 0, WithClock(clock.now))

	for range 100 {
		if !l.Allow("user-1") {
			t.Fatal("unlimited limiter refused a request")
		}
	}
}
