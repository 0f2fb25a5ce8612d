package process

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/procfs"
)

// Strategy starts and stops one kind of variant.
// This interface keeps the sequencer independent of how targets run.
type Strategy interface {
	// Spawn starts v listening on port.
	Spawn(ctx context.Context, v Variant, port int) (*Handle, error)

	// Terminate stops the process behind h and reaps it. On return the
	// handle's output is readable.
	Terminate(ctx context.Context, h *Handle) error
}

// TerminationObserver is notified about every termination attempt.
type TerminationObserver interface {
	ObserveTermination(kind Kind, err error)
	ObserveFleetKill(killed int)
}

// RegistryConfig holds configuration for a Registry.
type RegistryConfig struct {
	Launcher *Launcher
	Logger   *slog.Logger

	// TerminateTimeout bounds each reap before escalating (default 10s).
	TerminateTimeout time.Duration

	// ProcFS is the proc filesystem used for fleet matching.
	// Defaults to procfs.NewDefaultFS() on first use.
	ProcFS *procfs.FS

	Observer TerminationObserver
}

// Registry maps kinds to strategies. New kinds can be registered
// without touching the sequencer.
type Registry struct {
	mu         sync.RWMutex
	strategies map[Kind]Strategy
}

// NewRegistry creates a Registry with the four built-in strategies.
func NewRegistry(cfg RegistryConfig) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	launcher := cfg.Launcher
	if launcher == nil {
		launcher = NewLauncher(LauncherConfig{Logger: logger})
	}
	timeout := terminateTimeoutOrDefault(cfg.TerminateTimeout)

	base := strategyBase{
		Launcher: launcher,
		logger:   logger,
		timeout:  timeout,
		observer: cfg.Observer,
	}

	r := &Registry{strategies: make(map[Kind]Strategy)}
	r.Register(KindDirect, &DirectStrategy{base})
	r.Register(KindShell, &ShellStrategy{base})
	r.Register(KindDaemon, &DaemonStrategy{base})
	r.Register(KindFleet, &FleetStrategy{strategyBase: base, fs: cfg.ProcFS})
	return r
}

// Register installs s for kind, replacing any previous strategy.
func (r *Registry) Register(kind Kind, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[kind] = s
}

// For returns the strategy for kind.
func (r *Registry) For(kind Kind) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[kind]
	if !ok {
		return nil, fmt.Errorf("no strategy registered for kind %q", kind)
	}
	return s, nil
}
