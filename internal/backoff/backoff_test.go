package backoff

import (
	"testing"
	"time"
)

func TestExponentialJitterGrowth(t *testing.T) {
	s := ExponentialJitter{}
	base := 100 * time.Millisecond
	max := 10 * time.Second

	for attempt := 0; attempt < 5; attempt++ {
		expected := time.Duration(float64(base) * pow(2.0, attempt))
		for i := 0; i < 50; i++ {
			delay := s.Delay(attempt, base, max, 2.0, 0.1)
			if delay < expected {
				t.Fatalf("attempt %d: delay %v below deterministic floor %v", attempt, delay, expected)
			}
			ceiling := expected + time.Duration(float64(expected)*0.1)
			if delay > ceiling {
				t.Fatalf("attempt %d: delay %v above jitter ceiling %v", attempt, delay, ceiling)
			}
		}
	}
}

func TestExponentialJitterNoJitterIsDeterministic(t *testing.T) {
	s := ExponentialJitter{}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
	}
	for _, tt := range tests {
		got := s.Delay(tt.attempt, 100*time.Millisecond, 10*time.Second, 2.0, 0)
		if got != tt.want {
			t.Errorf("attempt %d: delay = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialJitterCappedAtMax(t *testing.T) {
	s := ExponentialJitter{}
	max := time.Second
	for _, attempt := range []int{10, 30, 100} {
		if got := s.Delay(attempt, 100*time.Millisecond, max, 2.0, 0.5); got != max {
			t.Errorf("attempt %d: delay = %v, want capped at %v", attempt, got, max)
		}
	}
}

func TestExponentialJitterNegativeAttempt(t *testing.T) {
	s := ExponentialJitter{}
	if got := s.Delay(-3, 100*time.Millisecond, time.Second, 2.0, 0); got != 100*time.Millisecond {
		t.Errorf("negative attempt delay = %v, want base", got)
	}
}

func TestDecorrelatedJitterRange(t *testing.T) {
	s := DecorrelatedJitter{}
	base := 100 * time.Millisecond
	max := 10 * time.Second

	if got := s.Delay(0, base, max, 0, 0); got != base {
		t.Errorf("attempt 0 delay = %v, want base", got)
	}

	for attempt := 1; attempt < 6; attempt++ {
		upper := time.Duration(float64(base) * pow(3.0, attempt))
		if upper > max {
			upper = max
		}
		for i := 0; i < 50; i++ {
			delay := s.Delay(attempt, base, max, 0, 0)
			if delay < base || delay > upper {
				t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt, delay, base, upper)
			}
		}
	}
}

func TestCalculatorDelegates(t *testing.T) {
	c := NewCalculator(ExponentialJitter{}, 50*time.Millisecond, time.Second, 2.0, 0)

	if got := c.Delay(0); got != 50*time.Millisecond {
		t.Errorf("Delay(0) = %v, want 50ms", got)
	}
	if got := c.Delay(1); got != 100*time.Millisecond {
		t.Errorf("Delay(1) = %v, want 100ms", got)
	}
	if got := c.Delay(20); got != time.Second {
		t.Errorf("Delay(20) = %v, want capped at 1s", got)
	}
}

func TestClamp01(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-1, 0},
		{0, 0},
		{0.5, 0.5},
		{1, 1},
		{2, 1},
	}
	for _, tt := range tests {
		if got := clamp01(tt.in); got != tt.want {
			t.Errorf("clamp01(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
