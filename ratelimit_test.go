package renteasy

import (
	"testing"
	"time"
)

func TestRateLimiterConsumesTokens(t *testing.T) {
	rl := NewRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if rl.Allow() {
		t.Error("request beyond capacity should be denied")
	}
	if rl.Tokens() != 0 {
		t.Errorf("Tokens = %d, want 0", rl.Tokens())
	}
}

func TestRateLimiterRefills(t *testing.T) {
	rl := NewRateLimiter(1, 20*time.Millisecond)

	if !rl.Allow() {
		t.Fatal("first request should be allowed")
	}
	if rl.Allow() {
		t.Fatal("bucket should be empty")
	}

	time.Sleep(30 * time.Millisecond)
	if !rl.Allow() {
		t.Error("request after refill interval should be allowed")
	}
}

func TestRateLimiterCapsAtMax(t *testing.T) {
	rl := NewRateLimiter(2, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	// Idle time cannot accumulate more than maxTokens.
	if !rl.Allow() || !rl.Allow() {
		t.Fatal("both capacity tokens should be available")
	}
	if rl.Allow() {
		t.Error("refill must not exceed capacity")
	}
}
