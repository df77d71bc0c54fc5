// Package backoff centralizes retry delay calculation for the client.
package backoff

import (
	"math/rand"
	"time"
)

// Strategy computes the delay before a retry attempt. Attempt numbering
// starts at 0 for the first retry.
type Strategy interface {
	Delay(attempt int, base, max time.Duration, multiplier, jitter float64) time.Duration
}

// ExponentialJitter is base * multiplier^attempt, capped at max, with a
// uniform random jitter fraction added on top.
type ExponentialJitter struct{}

func (ExponentialJitter) Delay(attempt int, base, max time.Duration, multiplier, jitter float64) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Cap the exponent so the float math cannot overflow into a negative
	// duration.
	if attempt > 30 {
		attempt = 30
	}

	delay := time.Duration(float64(base) * pow(multiplier, attempt))
	if delay < 0 || delay > max {
		delay = max
	}

	jitter = clamp01(jitter)
	if jitter > 0 {
		extra := time.Duration(float64(delay) * jitter * rand.Float64())
		if delay+extra > max {
			delay = max
		} else {
			delay += extra
		}
	}
	return delay
}

// DecorrelatedJitter picks a random delay in [base, min(max, base*3^attempt)].
// Smoother tail latencies than exponential jitter under contention; see the
// AWS architecture blog on exponential backoff and jitter.
type DecorrelatedJitter struct{}

func (DecorrelatedJitter) Delay(attempt int, base, max time.Duration, _, _ float64) time.Duration {
	if attempt <= 0 {
		return base
	}
	if attempt > 10 {
		attempt = 10
	}

	lower := float64(base)
	upper := lower * pow(3.0, attempt)
	if upper > float64(max) || upper < 0 {
		upper = float64(max)
	}
	if upper < lower {
		upper = lower
	}

	delay := time.Duration(lower + rand.Float64()*(upper-lower))
	if delay < 0 || delay > max {
		delay = max
	}
	return delay
}

// Calculator binds a Strategy to fixed tuning parameters.
type Calculator struct {
	strategy   Strategy
	base       time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
}

// NewCalculator creates a calculator using the given strategy and parameters.
func NewCalculator(strategy Strategy, base, max time.Duration, multiplier, jitter float64) *Calculator {
	return &Calculator{
		strategy:   strategy,
		base:       base,
		max:        max,
		multiplier: multiplier,
		jitter:     jitter,
	}
}

// Delay returns the delay before the given retry attempt (0-based).
func (c *Calculator) Delay(attempt int) time.Duration {
	return c.strategy.Delay(attempt, c.base, c.max, c.multiplier, c.jitter)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
