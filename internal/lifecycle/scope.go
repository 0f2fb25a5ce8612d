package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randomizedcoder/http-bench-driver/internal/process"
)

// lastResortWait bounds the final SIGKILL reap after a failed termination.
const lastResortWait = 5 * time.Second

// scopeEntry is one live process owned by a run.
type scopeEntry struct {
	role     Role
	strategy process.Strategy
	handle   *process.Handle
	artifact string
}

// scope owns a run's processes. close terminates them in reverse spawn
// order on every exit path, so a proxy always stops before its origin.
type scope struct {
	logger  *slog.Logger
	entries []scopeEntry
}

func newScope(logger *slog.Logger) *scope {
	return &scope{logger: logger}
}

func (s *scope) add(e scopeEntry) {
	s.entries = append(s.entries, e)
}

func (s *scope) empty() bool {
	return len(s.entries) == 0
}

// terminated is called once per entry after its process is reaped.
type terminatedFunc func(e scopeEntry, at time.Time, err error)

// collectFunc persists one reaped process's output.
type collectFunc func(e scopeEntry, output []byte) error

// close terminates and reaps every process, then collects each output.
// All processes are reaped before any output is collected. Errors are
// joined; the scope is empty afterwards.
func (s *scope) close(ctx context.Context, onTerminated terminatedFunc, collect collectFunc) error {
	// termination must run to completion even if the batch was cancelled
	ctx = context.WithoutCancel(ctx)

	var errs []error
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		err := e.strategy.Terminate(ctx, e.handle)
		if err != nil {
			errs = append(errs, err)
			s.lastResort(e)
		}
		if onTerminated != nil {
			onTerminated(e, time.Now(), err)
		}
	}

	for _, e := range s.entries {
		out, err := e.handle.Output()
		if err != nil {
			errs = append(errs, fmt.Errorf("collect %s: %w", e.artifact, err))
			continue
		}
		if err := collect(e, out); err != nil {
			errs = append(errs, err)
		}
	}

	s.entries = nil
	return errors.Join(errs...)
}

// lastResort kills a handle its strategy failed to stop, so the next run
// never starts with this process alive.
func (s *scope) lastResort(e scopeEntry) {
	if e.handle.Exited() {
		return
	}
	err := e.handle.Kill()
	s.logger.Warn("last_resort_kill",
		"variant", e.handle.Variant().Name,
		"pid", e.handle.Pid(),
		"error", err,
	)
	if !e.handle.ReapWithin(lastResortWait) {
		s.logger.Error("process_not_reaped",
			"variant", e.handle.Variant().Name,
			"pid", e.handle.Pid(),
		)
	}
}
