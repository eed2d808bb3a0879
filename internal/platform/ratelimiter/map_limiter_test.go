package ratelimiter

import (
	"testing"
	"time"
)

func TestNewRejectsNonPositiveArguments(t *testing.T) {
	if New(0, 1, time.Minute) != nil || New(1, 0, time.Minute) != nil {
		t.Fatal("expected nil limiter for invalid arguments")
	}
	var l *MapLimiter
	if !l.Allow("ctr_1", time.Now()) {
		t.Fatal("nil limiter must allow")
	}
}

func TestAllowEnforcesBurstPerKey(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	if !l.Allow("ctr_a", now) || !l.Allow("ctr_a", now) {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if l.Allow("ctr_a", now) {
		t.Fatal("third attempt inside the same instant must be limited")
	}
	if !l.Allow("ctr_b", now) {
		t.Fatal("other keys have their own bucket")
	}
	if got := l.RetryAfter("ctr_a", now); got <= 0 || got > time.Second {
		t.Fatalf("unexpected retry-after: %v", got)
	}
	if !l.Allow("ctr_a", now.Add(time.Second)) {
		t.Fatal("token should refill after one second")
	}
}

func TestAllowIgnoresEmptyKey(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Now()
	for i := 0; i < 5; i++ {
		if !l.Allow("  ", now) {
			t.Fatal("empty key must not be limited")
		}
	}
	if l.Len() != 0 {
		t.Fatalf("empty key should not be tracked, got %d", l.Len())
	}
}

func TestIdleBucketsAreEvicted(t *testing.T) {
	l := New(100, 1000, time.Minute)
	start := time.Unix(1_700_000_000, 0)
	l.Allow("stale", start)
	later := start.Add(2 * time.Minute)
	for i := 0; i < sweepEvery; i++ {
		l.Allow("fresh", later)
	}
	if l.Len() != 1 {
		t.Fatalf("expected stale key to be evicted, have %d keys", l.Len())
	}
}
