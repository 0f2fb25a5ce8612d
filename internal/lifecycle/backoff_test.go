package lifecycle

import (
	"slices"
	"testing"
	"time"
)

// =============================================================================
// Table-Driven Tests: Backoff
// =============================================================================

func TestDefaultBackoffConfig(t *testing.T) {
	cfg := DefaultBackoffConfig()

	if cfg.Initial != 25*time.Millisecond {
		t.Errorf("Initial = %v, want 25ms", cfg.Initial)
	}
	if cfg.Max != 500*time.Millisecond {
		t.Errorf("Max = %v, want 500ms", cfg.Max)
	}
	if cfg.Multiplier != 1.7 {
		t.Errorf("Multiplier = %v, want 1.7", cfg.Multiplier)
	}
}

func TestBackoff_Calculate_NoJitter(t *testing.T) {
	cfg := BackoffConfig{
		Initial:    100 * time.Millisecond,
		Max:        time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second}, // capped
		{10, time.Second},
	}

	for _, tt := range tests {
		b := NewBackoff(1, cfg)
		b.attempts = tt.attempts
		if got := b.Calculate(); got != tt.want {
			t.Errorf("attempts=%d: Calculate() = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestBackoff_Next(t *testing.T) {
	b := NewBackoff(1, BackoffConfig{Initial: 10 * time.Millisecond, Max: 35 * time.Millisecond, Multiplier: 2})

	var got []time.Duration
	for i := 0; i < 4; i++ {
		got = append(got, b.Next())
	}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 35 * time.Millisecond, 35 * time.Millisecond}
	if !slices.Equal(got, want) {
		t.Errorf("Next() sequence = %v, want %v", got, want)
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	cfg := BackoffConfig{Initial: 100 * time.Millisecond, Max: time.Second, Multiplier: 1, JitterPct: 0.2}
	b := NewBackoff(42, cfg)

	for i := 0; i < 100; i++ {
		d := b.Next()
		if d < 90*time.Millisecond || d > 110*time.Millisecond {
			t.Fatalf("delay %v outside ±10%% of 100ms", d)
		}
	}
}

func TestBackoff_DeterministicJitter(t *testing.T) {
	cfg := DefaultBackoffConfig()
	a := NewBackoff(7, cfg)
	b := NewBackoff(7, cfg)

	for i := 0; i < 10; i++ {
		if x, y := a.Next(), b.Next(); x != y {
			t.Fatalf("attempt %d: %v != %v for the same seed", i, x, y)
		}
	}
}
