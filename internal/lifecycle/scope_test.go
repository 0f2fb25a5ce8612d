package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/randomizedcoder/http-bench-driver/internal/process"
)

// stuckStrategy spawns normally but never manages to stop the process.
type stuckStrategy struct {
	process.Strategy
}

func (stuckStrategy) Terminate(context.Context, *process.Handle) error {
	return errors.New("stuck")
}

func TestScope_LastResortKill(t *testing.T) {
	h := newHarness(t)
	direct, err := h.config().Strategies.For(process.KindDirect)
	if err != nil {
		t.Fatal(err)
	}
	handle, err := direct.Spawn(context.Background(), h.variant(t, "origin-hello"), h.ports.Origin)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { handle.Kill() })

	var logs bytes.Buffer
	sc := newScope(slog.New(slog.NewTextHandler(&logs, nil)))
	sc.add(scopeEntry{role: RoleOrigin, strategy: stuckStrategy{direct}, handle: handle, artifact: "server.log"})

	var terminateErr error
	err = sc.close(context.Background(),
		func(_ scopeEntry, _ time.Time, err error) { terminateErr = err },
		func(scopeEntry, []byte) error { return nil },
	)
	if err == nil || terminateErr == nil {
		t.Fatalf("close() = %v, onTerminated err = %v, want stuck", err, terminateErr)
	}
	if !handle.Exited() {
		t.Error("process should be killed after a failed termination")
	}
	if !sc.empty() {
		t.Error("scope should be empty after close")
	}

	out := logs.String()
	if !strings.Contains(out, "last_resort_kill") || !strings.Contains(out, "error=") {
		t.Errorf("log = %q, want last_resort_kill with its error", out)
	}
	if strings.Contains(out, "process_not_reaped") {
		t.Errorf("log = %q, process should be reaped", out)
	}
}
