package ratelimit

import (
	"testing"
	"time"
)

func TestAllowRespectsBurst(t *testing.T) {
	l := NewFromWindow(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("request %d should have been allowed within burst", i)
		}
	}
	if l.Allow("1.2.3.4") {
		t.Fatal("request beyond burst should have been rejected")
	}
}

func TestAllowTracksKeysIndependently(t *testing.T) {
	l := NewFromWindow(1, time.Minute)

	if !l.Allow("a") {
		t.Fatal("first request for key a should be allowed")
	}
	if !l.Allow("b") {
		t.Fatal("first request for key b should be allowed, independent of key a")
	}
	if l.Allow("a") {
		t.Fatal("second request for key a should be rejected")
	}
}

func TestSweepEvictsIdleBuckets(t *testing.T) {
	l := New(1, 1, time.Millisecond)
	l.Allow("stale")
	time.Sleep(5 * time.Millisecond)

	if n := l.Sweep(); n != 1 {
		t.Fatalf("expected 1 bucket evicted, got %d", n)
	}
	if l.Len() != 0 {
		t.Fatalf("expected 0 buckets remaining, got %d", l.Len())
	}
}
