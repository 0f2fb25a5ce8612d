// Package orchestrator runs a benchmark batch: preflight, one sequenced
// run per variant, metrics and the exit summary.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/http-bench-driver/internal/config"
	"github.com/randomizedcoder/http-bench-driver/internal/lifecycle"
	"github.com/randomizedcoder/http-bench-driver/internal/metrics"
	"github.com/randomizedcoder/http-bench-driver/internal/preflight"
	"github.com/randomizedcoder/http-bench-driver/internal/process"
	"github.com/randomizedcoder/http-bench-driver/internal/results"
	"github.com/randomizedcoder/http-bench-driver/internal/stats"
	"github.com/randomizedcoder/http-bench-driver/internal/tui"
)

// ErrPreflight is returned when preflight checks fail.
var ErrPreflight = errors.New("preflight checks failed (use --skip-preflight to override)")

// Options holds the optional collaborators of an Orchestrator.
type Options struct {
	// Version is reported in bench_info.
	Version string

	// Stdout receives preflight output. Defaults to os.Stdout.
	Stdout io.Writer

	// UI receives progress messages when the dashboard is enabled.
	UI tui.Sender
}

// Orchestrator coordinates all components for a benchmark batch.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger
	stdout io.Writer
	ui     tui.Sender

	registry      *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server
	results       *results.Collector
	sequencer     *lifecycle.Sequencer
	plan          *Plan
	timings       *stats.PhaseTimings

	mu        sync.Mutex
	records   []stats.RunRecord
	batchErr  error
	startTime time.Time
	endTime   time.Time
}

// New wires the components for batch b. The batch is resolved into a
// plan immediately so --print-cmd and preflight see the final commands.
func New(cfg *config.Config, b *config.Batch, logger *slog.Logger, opts Options) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	policy, err := lifecycle.ParseToolPolicy(cfg.ToolFailurePolicy)
	if err != nil {
		return nil, err
	}
	phases, err := lifecycle.ParsePhaseMode(cfg.Phases)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		config:   cfg,
		logger:   logger,
		stdout:   stdout,
		ui:       opts.UI,
		registry: prometheus.NewRegistry(),
		timings:  stats.NewPhaseTimings(),
	}

	o.metrics = metrics.NewCollector(metrics.CollectorConfig{
		Version:   opts.Version,
		BatchSize: b.Len(),
	}, o.registry)
	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServer(cfg.MetricsAddr, o.registry, logger)
	}

	o.results = results.NewCollector(results.CollectorConfig{
		Root:    cfg.ResultsDir,
		Logger:  logger,
		OnWrite: o.metrics.ArtifactWritten,
	})

	launcher := process.NewLauncher(process.LauncherConfig{
		Logger:  logger,
		Verbose: cfg.Verbose,
	})
	registry := process.NewRegistry(process.RegistryConfig{
		Launcher:         launcher,
		Logger:           logger,
		TerminateTimeout: cfg.TerminateTimeout,
		Observer:         o.metrics,
	})

	o.sequencer = lifecycle.New(lifecycle.Config{
		Strategies: registry,
		Collector:  o.results,
		Readiness:  readinessFor(cfg),
		Probe:      process.ProbeConfig{BinaryPath: cfg.CurlPath},
		Load: process.LoadConfig{
			BinaryPath:        cfg.OhaPath,
			Concurrency:       cfg.Concurrency,
			Duration:          cfg.LoadDuration,
			LatencyCorrection: cfg.LatencyCorrection,
		},
		Phases:     phases,
		Policy:     policy,
		OriginPort: cfg.OriginPort,
		ProxyPort:  cfg.ProxyPort,
		Logger:     logger,
		Callbacks: lifecycle.Callbacks{
			OnPhase:      o.onPhase,
			OnStep:       o.onStep,
			OnSpawned:    o.onSpawned,
			OnTerminated: o.onTerminated,
			OnToolResult: o.onToolResult,
		},
	})

	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("working directory: %w", err)
	}
	resolver := process.Resolver{
		BinDir:       cfg.BinDir,
		DaemonBinary: cfg.NginxPath,
		Shell:        cfg.ShellPath,
		WorkDir:      workDir,
	}

	o.plan, err = BuildPlan(b, resolver, o.sequencer)
	if err != nil {
		return nil, err
	}

	return o, nil
}

// readinessFor selects the warm-up strategy.
func readinessFor(cfg *config.Config) lifecycle.Readiness {
	if cfg.Readiness == "sleep" {
		return lifecycle.FixedDelay{Warmup: cfg.Warmup, SettleTime: cfg.Settle}
	}
	p := lifecycle.DefaultPoll()
	p.Timeout = cfg.ReadyTimeout
	p.SettleTime = cfg.Settle
	p.Seed = time.Now().UnixNano()
	return p
}

// Plan returns the resolved runs.
func (o *Orchestrator) Plan() *Plan {
	return o.plan
}

// Registry returns the metrics registry.
func (o *Orchestrator) Registry() *prometheus.Registry {
	return o.registry
}

// PrintCommands writes every command the batch would execute.
func (o *Orchestrator) PrintCommands(w io.Writer) {
	fmt.Fprintln(w, "# Commands that would be run, in order:")
	for _, run := range o.plan.Runs {
		fmt.Fprintf(w, "\n# %s (%s) -> %s\n", run.Name(), run.Role, run.OutputDir)
		for _, cmd := range o.sequencer.Commands(run) {
			fmt.Fprintln(w, cmd)
		}
	}
}

// Run executes the batch. It blocks until every run has finished, a run
// fails, or a signal arrives. The metrics snapshot is written whatever
// the outcome.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	o.startTime = time.Now()
	o.mu.Unlock()

	if !o.config.SkipPreflight {
		result := preflight.RunAll(o.preflightOptions())
		preflight.PrintResults(o.stdout, result)
		if !result.Passed {
			o.finish(ErrPreflight)
			return ErrPreflight
		}
	}

	if o.metricsServer != nil {
		if err := o.metricsServer.Start(); err != nil {
			err = fmt.Errorf("failed to start metrics server: %w", err)
			o.finish(err)
			return err
		}
		defer o.shutdownMetricsServer()
	}

	// SIGINT/SIGTERM cancel the batch; the running sequencer reaps its targets
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	o.logger.Info("batch_starting",
		"runs", o.plan.Len(),
		"results", o.results.Root(),
		"sequencer", o.sequencer.String(),
	)
	if o.metricsServer != nil {
		o.metricsServer.SetReady(true)
	}

	err := o.runAll(ctx)
	if err != nil && ctx.Err() != nil {
		o.logger.Warn("batch_interrupted", "error", err)
	}

	o.finish(err)

	if snapErr := metrics.WriteSnapshot(o.registry, results.SnapshotFile, o.results.WriteRoot); snapErr != nil {
		o.logger.Warn("metrics_snapshot_failed", "error", snapErr)
		err = errors.Join(err, snapErr)
	}

	return err
}

// runAll executes the runs in order and stops at the first error.
func (o *Orchestrator) runAll(ctx context.Context) error {
	for i, run := range o.plan.Runs {
		if err := ctx.Err(); err != nil {
			return err
		}

		o.logger.Info("run_scheduled", "index", i+1, "of", o.plan.Len(), "variant", run.Name())
		o.metrics.RunStarted(run.Name(), run.Role.String())
		o.send(tui.RunStartedMsg{Variant: run.Name(), Role: run.Role.String(), Target: run.TargetURL})

		rep, err := o.sequencer.Execute(ctx, run)
		o.record(rep)

		if err != nil {
			return fmt.Errorf("run %s: %w", run.Name(), err)
		}
	}
	return nil
}

// record stores the outcome of a run.
func (o *Orchestrator) record(rep *lifecycle.Report) {
	rec := stats.RunRecord{
		Variant:      rep.Run.Name(),
		Role:         rep.Run.Role.String(),
		Succeeded:    rep.Succeeded(),
		Duration:     rep.Duration(),
		ToolFailures: len(rep.ToolFailures),
		StderrErrors: rep.StderrErrorTotal(),
	}
	if rep.Err != nil {
		rec.Error = rep.Err.Error()
	}

	o.mu.Lock()
	o.records = append(o.records, rec)
	o.mu.Unlock()

	o.metrics.RunFinished(rec.Role, rec.Succeeded)
	o.send(tui.RunFinishedMsg{Record: rec})
}

func (o *Orchestrator) finish(err error) {
	o.mu.Lock()
	o.endTime = time.Now()
	o.batchErr = err
	o.mu.Unlock()

	o.send(tui.BatchDoneMsg{Err: err})
	if err != nil {
		o.logger.Error("batch_failed", "error", err)
		return
	}
	o.logger.Info("batch_complete", "runs", o.plan.Len())
}

func (o *Orchestrator) shutdownMetricsServer() {
	o.metricsServer.SetReady(false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.metricsServer.Shutdown(ctx); err != nil {
		o.logger.Warn("metrics_server_shutdown_error", "error", err)
	}
}

func (o *Orchestrator) preflightOptions() preflight.Options {
	return preflight.Options{
		CurlPath:    o.config.CurlPath,
		OhaPath:     o.config.OhaPath,
		NginxPath:   o.config.NginxPath,
		NeedNginx:   o.plan.UsesKind(process.KindDaemon),
		Executables: o.plan.Executables(),
		Ports:       []int{o.config.OriginPort, o.config.ProxyPort},
		Concurrency: o.config.Concurrency,
	}
}

// Records returns the outcomes of the runs executed so far.
func (o *Orchestrator) Records() []stats.RunRecord {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]stats.RunRecord, len(o.records))
	copy(out, o.records)
	return out
}

// Summary formats the exit summary.
func (o *Orchestrator) Summary() string {
	o.mu.Lock()
	cfg := stats.SummaryConfig{
		Duration:  o.endTime.Sub(o.startTime),
		Scheduled: o.plan.Len(),
		Runs:      append([]stats.RunRecord(nil), o.records...),
		Aborted:   o.batchErr,
	}
	o.mu.Unlock()

	cfg.Phases = o.timings.Stats()
	if abs, err := filepath.Abs(o.results.Root()); err == nil {
		cfg.ResultsDir = abs
	}
	if o.metricsServer != nil {
		cfg.MetricsAddr = o.metricsServer.Addr()
	}
	return stats.FormatExitSummary(cfg)
}

// Callback handlers

func (o *Orchestrator) onPhase(run lifecycle.Run, _, to lifecycle.Phase) {
	o.send(tui.PhaseMsg{Variant: run.Name(), Phase: to.String()})
}

func (o *Orchestrator) onStep(run lifecycle.Run, step string, d time.Duration) {
	o.metrics.ObservePhase(step, d)
	o.timings.Add(step, d)
	o.send(tui.StepMsg{Variant: run.Name(), Step: step, Duration: d})
}

func (o *Orchestrator) onSpawned(run lifecycle.Run, role lifecycle.Role, pid int) {
	if o.config.Verbose {
		o.logger.Debug("run_process_started", "variant", run.Name(), "role", role.String(), "pid", pid)
	}
}

func (o *Orchestrator) onTerminated(run lifecycle.Run, role lifecycle.Role, kind process.Kind, at time.Time, err error) {
	if err != nil {
		o.logger.Warn("run_process_termination_failed",
			"variant", run.Name(),
			"role", role.String(),
			"kind", string(kind),
			"error", err,
		)
	}
}

func (o *Orchestrator) onToolResult(run lifecycle.Run, step string, res process.ToolResult) {
	if res.Err != nil && res.Started() {
		o.metrics.ToolFailed(filepath.Base(res.Tool))
	}
	o.send(tui.ToolMsg{Variant: run.Name(), Step: step, ExitCode: res.ExitCode})
}

func (o *Orchestrator) send(msg any) {
	if o.ui != nil {
		o.ui.Send(msg)
	}
}
