package lifecycle

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/randomizedcoder/http-bench-driver/internal/process"
	"github.com/randomizedcoder/http-bench-driver/internal/testtarget"
)

func spawnHelper(t *testing.T, name string, args ...string) (*process.Handle, int) {
	t.Helper()
	dir := t.TempDir()
	port := testtarget.FreePort(t)
	testtarget.Install(t, dir, testtarget.Ports{Origin: port}, name)

	path := filepath.Join(dir, name)
	v := process.Variant{Name: name, Kind: process.KindDirect, Path: path, Command: path, Args: args}
	l := process.NewLauncher(process.LauncherConfig{Logger: discardLogger()})
	h, err := l.Spawn(context.Background(), v, port)
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	t.Cleanup(func() {
		h.Kill()
		h.Reap()
	})
	return h, port
}

func addr(port int) string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
}

func TestPoll_WarmUp(t *testing.T) {
	h, port := spawnHelper(t, "origin-hello")

	p := DefaultPoll()
	if err := p.WarmUp(context.Background(), h, addr(port)); err != nil {
		t.Fatalf("WarmUp() error = %v", err)
	}
	conn, err := net.Dial("tcp", addr(port))
	if err != nil {
		t.Fatalf("target not accepting after WarmUp: %v", err)
	}
	conn.Close()
}

func TestPoll_WarmUpProcessExits(t *testing.T) {
	h, port := spawnHelper(t, "origin-crash")

	start := time.Now()
	err := DefaultPoll().WarmUp(context.Background(), h, addr(port))
	if !errors.Is(err, process.ErrSpawn) {
		t.Fatalf("WarmUp() error = %v, want ErrSpawn", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("WarmUp() waited for the timeout although the process died")
	}
}

func TestPoll_WarmUpTimeout(t *testing.T) {
	// a fleet worker never listens
	h, port := spawnHelper(t, "idle-fleet", "worker")

	p := Poll{Timeout: 300 * time.Millisecond, Backoff: DefaultBackoffConfig()}
	err := p.WarmUp(context.Background(), h, addr(port))

	var se *process.SpawnError
	if !errors.As(err, &se) {
		t.Fatalf("WarmUp() error = %v, want SpawnError", err)
	}
	if h.Exited() {
		t.Error("WarmUp() must not stop the process")
	}
}

func TestPoll_WarmUpCancelled(t *testing.T) {
	h, port := spawnHelper(t, "idle-fleet", "worker")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	err := DefaultPoll().WarmUp(ctx, h, addr(port))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("WarmUp() error = %v, want context.Canceled", err)
	}
}

func TestFixedDelay(t *testing.T) {
	t.Run("warmup_waits", func(t *testing.T) {
		h, port := spawnHelper(t, "origin-hello")
		f := FixedDelay{Warmup: 150 * time.Millisecond}

		start := time.Now()
		if err := f.WarmUp(context.Background(), h, addr(port)); err != nil {
			t.Fatalf("WarmUp() error = %v", err)
		}
		if time.Since(start) < 150*time.Millisecond {
			t.Error("WarmUp() returned early")
		}
	})

	t.Run("detects_exit", func(t *testing.T) {
		h, port := spawnHelper(t, "origin-crash")
		f := FixedDelay{Warmup: 500 * time.Millisecond}
		if err := f.WarmUp(context.Background(), h, addr(port)); !errors.Is(err, process.ErrSpawn) {
			t.Errorf("WarmUp() error = %v, want ErrSpawn", err)
		}
	})

	t.Run("settle_cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := (FixedDelay{SettleTime: time.Hour}).Settle(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("Settle() error = %v", err)
		}
	})

	t.Run("defaults", func(t *testing.T) {
		f := DefaultFixedDelay()
		if f.Warmup != 2*time.Second || f.SettleTime != time.Second {
			t.Errorf("DefaultFixedDelay() = %+v", f)
		}
	})
}
