package process

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/randomizedcoder/http-bench-driver/internal/logging"
)

// Launcher starts variants and hands back their process handles.
type Launcher struct {
	logger  *slog.Logger
	verbose bool
	host    string

	// waitDelay bounds how long a reap waits for inherited output pipes
	// after the main process has exited.
	waitDelay time.Duration
}

// LauncherConfig holds configuration for a Launcher.
type LauncherConfig struct {
	Logger  *slog.Logger
	Verbose bool

	// Host is the address ports are checked on (default 127.0.0.1).
	Host string

	// WaitDelay defaults to 2s.
	WaitDelay time.Duration
}

// NewLauncher creates a Launcher.
func NewLauncher(cfg LauncherConfig) *Launcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	host := cfg.Host
	if host == "" {
		host = "127.0.0.1"
	}
	waitDelay := cfg.WaitDelay
	if waitDelay <= 0 {
		waitDelay = 2 * time.Second
	}
	return &Launcher{
		logger:    logger,
		verbose:   cfg.Verbose,
		host:      host,
		waitDelay: waitDelay,
	}
}

// Spawn starts v, which is expected to listen on port.
//
// The process is not tied to ctx: a target is only ever stopped by its
// termination strategy. ctx is checked before anything is started.
func (l *Launcher) Spawn(ctx context.Context, v Variant, port int) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, &SpawnError{Variant: v.Name, Reason: "cancelled", Err: err}
	}

	if _, err := exec.LookPath(v.Command); err != nil {
		return nil, &SpawnError{Variant: v.Name, Reason: "executable not found", Err: err}
	}
	if v.Path != v.Command {
		if _, err := exec.LookPath(v.Path); err != nil {
			return nil, &SpawnError{Variant: v.Name, Reason: "executable not found", Err: err}
		}
	}

	if err := CheckPortFree(l.host, port); err != nil {
		return nil, &SpawnError{Variant: v.Name, Reason: "port already bound", Err: err}
	}

	cmd := exec.Command(v.Command, v.Args...)
	cmd.WaitDelay = l.waitDelay

	// Own process group so terminal signals reach the driver only;
	// targets are stopped by their strategy.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	h := newHandle(v, cmd, logging.NewOutputHandler(v.Name, l.logger, l.verbose))
	if err := h.start(); err != nil {
		l.logger.Error("failed_to_start_process",
			"variant", v.Name,
			"command", v.CommandLine(),
			"error", err,
		)
		return nil, &SpawnError{Variant: v.Name, Reason: "start failed", Err: err}
	}

	l.logger.Info("target_spawned",
		"variant", v.Name,
		"kind", string(v.Kind),
		"pid", h.Pid(),
		"port", port,
	)

	return h, nil
}

// CheckPortFree returns an error if something already listens on host:port.
func CheckPortFree(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return ln.Close()
}

// terminateTimeoutOrDefault returns d, or 10s when d is not set.
func terminateTimeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

// forceKill is the last resort for a process that ignored its strategy.
func forceKill(logger *slog.Logger, h *Handle, timeout time.Duration) error {
	logger.Warn("force_killing_process",
		"variant", h.Variant().Name,
		"pid", h.Pid(),
	)
	if err := h.Signal(os.Kill); err != nil {
		return fmt.Errorf("force kill: %w", err)
	}
	if !h.ReapWithin(timeout) {
		return fmt.Errorf("pid %d still running after SIGKILL", h.Pid())
	}
	return nil
}
