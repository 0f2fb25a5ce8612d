package lifecycle

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig holds the configuration for the readiness poll interval.
type BackoffConfig struct {
	Initial    time.Duration // First poll interval (default: 25ms)
	Max        time.Duration // Maximum poll interval (default: 500ms)
	Multiplier float64       // Multiplier for each attempt (default: 1.7)
	JitterPct  float64       // Jitter as a percentage of delay (default: 0.2 = ±10%)
}

// DefaultBackoffConfig returns sensible defaults for polling a local port.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    25 * time.Millisecond,
		Max:        500 * time.Millisecond,
		Multiplier: 1.7,
		JitterPct:  0.2,
	}
}

// Backoff calculates exponential backoff delays with jitter.
// The seed makes the jitter sequence reproducible.
type Backoff struct {
	config   BackoffConfig
	attempts int
	rng      *rand.Rand
}

// NewBackoff creates a new Backoff calculator.
func NewBackoff(seed int64, cfg BackoffConfig) *Backoff {
	return &Backoff{
		config: cfg,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Next returns the next delay and increments the attempt counter.
func (b *Backoff) Next() time.Duration {
	delay := b.Calculate()
	b.attempts++
	return delay
}

// Calculate returns the current delay without incrementing attempts.
func (b *Backoff) Calculate() time.Duration {
	delay := float64(b.config.Initial) * math.Pow(b.config.Multiplier, float64(b.attempts))

	if delay > float64(b.config.Max) {
		delay = float64(b.config.Max)
	}

	// ±(JitterPct/2) of the delay
	if b.config.JitterPct > 0 {
		jitterRange := delay * b.config.JitterPct
		jitter := jitterRange*b.rng.Float64() - jitterRange/2
		delay += jitter
	}

	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}
