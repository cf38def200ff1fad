package exchange

import (
	"math/rand"
	"time"
)

// RandomSource provides random values for jitter calculation.
// Allows injection of deterministic sources for testing.
type RandomSource interface {
	// Float64 returns a random float64 in [0.0, 1.0).
	Float64() float64
}

// defaultRandomSource uses math/rand for production.
type defaultRandomSource struct{}

func (defaultRandomSource) Float64() float64 {
	return rand.Float64()
}

// DefaultRandomSource is the default random source using math/rand.
var DefaultRandomSource RandomSource = defaultRandomSource{}

// Backoff computes the wait before the next resend of an entry.
type Backoff interface {
	// Calculate returns the wait for the given attempt. attempt is the
	// number of resends performed including the one being scheduled, so the
	// first resend passes 1.
	Calculate(timeout time.Duration, attempt int) time.Duration
}

// AdditiveBackoff implements
//
//	wait = timeout + step*attempt
//
// optionally stretched by (1.0 + random(0,1)*Jitter). With Jitter zero the
// schedule is exact.
type AdditiveBackoff struct {
	// Step is added once per attempt.
	Step time.Duration

	// Jitter scales a random stretch of the wait. Zero disables it.
	Jitter float64

	random RandomSource
}

// NewAdditiveBackoff creates an additive backoff with the given step and
// random source. If random is nil, DefaultRandomSource is used.
func NewAdditiveBackoff(step time.Duration, jitter float64, random RandomSource) *AdditiveBackoff {
	if random == nil {
		random = DefaultRandomSource
	}
	return &AdditiveBackoff{Step: step, Jitter: jitter, random: random}
}

// Calculate returns timeout + Step*attempt with jitter applied.
func (b *AdditiveBackoff) Calculate(timeout time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	wait := timeout + b.Step*time.Duration(attempt)
	if b.Jitter <= 0 {
		return wait
	}
	return time.Duration(float64(wait) * (1.0 + b.random.Float64()*b.Jitter))
}

// CalculateMin computes the wait without jitter.
func (b *AdditiveBackoff) CalculateMin(timeout time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return timeout + b.Step*time.Duration(attempt)
}

// CalculateMax computes the wait with full jitter.
func (b *AdditiveBackoff) CalculateMax(timeout time.Duration, attempt int) time.Duration {
	return time.Duration(float64(b.CalculateMin(timeout, attempt)) * (1.0 + b.Jitter))
}
