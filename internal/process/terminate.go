package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"
)

// strategyBase carries what every built-in strategy shares. Spawning is
// identical for all kinds; the variant already holds the exact command.
type strategyBase struct {
	*Launcher
	logger   *slog.Logger
	timeout  time.Duration
	observer TerminationObserver
}

func (b strategyBase) observe(kind Kind, err error) {
	if b.observer != nil {
		b.observer.ObserveTermination(kind, err)
	}
}

// reap waits for h after it was signalled, escalating to SIGKILL when the
// process outlives the timeout.
func (b strategyBase) reap(ctx context.Context, h *Handle) error {
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case <-h.Done():
	case <-timer.C:
		if err := forceKill(b.logger, h, b.timeout); err != nil {
			return err
		}
	case <-ctx.Done():
		if err := forceKill(b.logger, h, b.timeout); err != nil {
			return err
		}
	}

	if err := h.Reap(); err != nil {
		// Usually exec.ErrWaitDelay: a grandchild kept an output pipe open.
		b.logger.Warn("target_reap_incomplete",
			"variant", h.Variant().Name,
			"pid", h.Pid(),
			"error", err,
		)
	}

	b.logger.Info("target_terminated",
		"variant", h.Variant().Name,
		"pid", h.Pid(),
		"exit_code", h.ExitCode(),
		"uptime", h.Uptime().String(),
	)
	return nil
}

// killHandle kills the owned handle and reaps it.
func (b strategyBase) killHandle(ctx context.Context, h *Handle) error {
	if err := h.Kill(); err != nil {
		return &TerminationError{Variant: h.Variant().Name, Pid: h.Pid(), Err: err}
	}
	if err := b.reap(ctx, h); err != nil {
		return &TerminationError{Variant: h.Variant().Name, Pid: h.Pid(), Err: err}
	}
	return nil
}

// DirectStrategy runs a compiled target and kills its handle.
type DirectStrategy struct {
	strategyBase
}

// Terminate kills the owned process and reaps it.
func (s *DirectStrategy) Terminate(ctx context.Context, h *Handle) error {
	err := s.killHandle(ctx, h)
	s.observe(KindDirect, err)
	return err
}

// ShellStrategy runs a target through a shell wrapper. The wrapper execs
// the target, so killing the shell-spawned handle stops the target.
type ShellStrategy struct {
	strategyBase
}

// Terminate kills the shell-spawned handle and reaps it.
func (s *ShellStrategy) Terminate(ctx context.Context, h *Handle) error {
	err := s.killHandle(ctx, h)
	s.observe(KindShell, err)
	return err
}

// DaemonStrategy runs an external server and stops it gracefully with
// SIGTERM sent to its pid. The daemon may re-exec itself, so the pid is
// signalled rather than relying on the handle's own stop.
type DaemonStrategy struct {
	strategyBase
}

// Terminate sends SIGTERM to the daemon's pid and reaps it.
func (s *DaemonStrategy) Terminate(ctx context.Context, h *Handle) error {
	err := s.terminate(ctx, h)
	s.observe(KindDaemon, err)
	return err
}

func (s *DaemonStrategy) terminate(ctx context.Context, h *Handle) error {
	if h.Exited() {
		s.logger.Warn("target_already_exited",
			"variant", h.Variant().Name,
			"pid", h.Pid(),
			"exit_code", h.ExitCode(),
		)
		return nil
	}

	if err := unix.Kill(h.Pid(), unix.SIGTERM); err != nil {
		return &TerminationError{
			Variant: h.Variant().Name,
			Pid:     h.Pid(),
			Err:     fmt.Errorf("SIGTERM: %w", err),
		}
	}

	if err := s.reap(ctx, h); err != nil {
		return &TerminationError{Variant: h.Variant().Name, Pid: h.Pid(), Err: err}
	}
	return nil
}

// errNoFleetPattern is returned for a fleet variant without a pattern.
var errNoFleetPattern = errors.New("fleet variant has no process pattern")
