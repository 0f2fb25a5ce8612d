package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/avast/retry-go"

	"github.com/randomizedcoder/http-bench-driver/internal/process"
)

// Readiness decides when a spawned target may receive requests.
type Readiness interface {
	// WarmUp blocks until the target behind h, listening on addr, is
	// ready for the probe. It fails if the process exits meanwhile.
	WarmUp(ctx context.Context, h *process.Handle, addr string) error

	// Settle blocks between the probe and the first load phase.
	Settle(ctx context.Context) error
}

// FixedDelay waits fixed durations and never looks at the target.
type FixedDelay struct {
	Warmup     time.Duration
	SettleTime time.Duration
}

// DefaultFixedDelay returns the 2s warm-up and 1s settle delays.
func DefaultFixedDelay() FixedDelay {
	return FixedDelay{Warmup: 2 * time.Second, SettleTime: time.Second}
}

// WarmUp sleeps for the warm-up delay.
func (f FixedDelay) WarmUp(ctx context.Context, h *process.Handle, _ string) error {
	if err := sleepCtx(ctx, f.Warmup); err != nil {
		return err
	}
	return checkAlive(h)
}

// Settle sleeps for the settle delay.
func (f FixedDelay) Settle(ctx context.Context) error {
	return sleepCtx(ctx, f.SettleTime)
}

// Poll dials the target's port until it accepts a connection, backing off
// between attempts, bounded by Timeout.
type Poll struct {
	// Timeout bounds the whole warm-up (default 10s).
	Timeout time.Duration

	// DialTimeout bounds each connection attempt (default 250ms).
	DialTimeout time.Duration

	// SettleTime is slept between the probe and the first load phase.
	SettleTime time.Duration

	Backoff BackoffConfig
	Seed    int64
}

// DefaultPoll returns a Poll with sensible defaults.
func DefaultPoll() Poll {
	return Poll{
		Timeout:     10 * time.Second,
		DialTimeout: 250 * time.Millisecond,
		SettleTime:  time.Second,
		Backoff:     DefaultBackoffConfig(),
	}
}

// maxPollAttempts is effectively unlimited; Timeout is the real bound.
const maxPollAttempts = 1 << 20

// WarmUp polls addr until it accepts a TCP connection.
func (p Poll) WarmUp(ctx context.Context, h *process.Handle, addr string) error {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	dialTimeout := p.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 250 * time.Millisecond
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	backoff := NewBackoff(p.Seed, p.Backoff)
	dialer := net.Dialer{Timeout: dialTimeout}

	var lastDialErr error
	err := retry.Do(
		func() error {
			if err := checkAlive(h); err != nil {
				return retry.Unrecoverable(err)
			}
			conn, err := dialer.DialContext(pollCtx, "tcp", addr)
			if err != nil {
				lastDialErr = err
				return err
			}
			return conn.Close()
		},
		retry.Context(pollCtx),
		retry.Attempts(maxPollAttempts),
		retry.LastErrorOnly(true),
		retry.DelayType(func(_ uint, _ error, _ *retry.Config) time.Duration {
			return backoff.Next()
		}),
	)
	if err == nil {
		return nil
	}

	// a process that died is reported as such, whatever else happened
	if aliveErr := checkAlive(h); aliveErr != nil {
		return aliveErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) && lastDialErr != nil {
		err = lastDialErr
	}
	return &process.SpawnError{
		Variant: h.Variant().Name,
		Reason:  fmt.Sprintf("not ready on %s within %s", addr, timeout),
		Err:     err,
	}
}

// Settle sleeps for the settle delay.
func (p Poll) Settle(ctx context.Context) error {
	return sleepCtx(ctx, p.SettleTime)
}

// checkAlive returns a SpawnError if the process behind h has exited.
func checkAlive(h *process.Handle) error {
	if !h.Exited() {
		return nil
	}
	reason := fmt.Sprintf("exited during warm-up with code %d", h.ExitCode())
	if lines := h.RecentStderr(3); len(lines) > 0 {
		reason += ": " + strings.Join(lines, " | ")
	}
	return &process.SpawnError{Variant: h.Variant().Name, Reason: reason}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
