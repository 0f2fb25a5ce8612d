// Package metrics provides Prometheus metrics for http-bench-driver.
//
// The collector tracks batch progress, per-phase wall time, termination
// outcomes per strategy and tool failures. Metrics are served on -metrics
// while the batch runs and written to results/metrics.prom when it ends.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/http-bench-driver/internal/process"
)

const namespace = "bench"

// Collector manages all Prometheus metrics for the driver.
type Collector struct {
	info              *prometheus.GaugeVec
	runsTotal         *prometheus.CounterVec
	phaseDuration     *prometheus.HistogramVec
	terminationsTotal *prometheus.CounterVec
	toolFailures      *prometheus.CounterVec
	fleetKilled       prometheus.Counter
	artifactBytes     *prometheus.CounterVec
	batchProgress     prometheus.Gauge
	batchRuns         prometheus.Gauge
	currentRun        *prometheus.GaugeVec

	mu       sync.Mutex
	total    int
	finished int
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version   string
	BatchSize int
}

// NewCollector creates a collector registered with registry. Each batch
// uses its own registry so the snapshot holds only that batch's series.
func NewCollector(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Information about the driver (value always 1)",
		}, []string{"version"}),

		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Completed runs by role and result",
		}, []string{"role", "result"}),

		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Wall time of each lifecycle step",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 15, 20, 30, 60},
		}, []string{"phase"}),

		terminationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminations_total",
			Help:      "Termination attempts by strategy and result",
		}, []string{"strategy", "result"}),

		toolFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_failures_total",
			Help:      "Probe and load-test tool runs that exited non-zero",
		}, []string{"tool"}),

		fleetKilled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fleet_processes_killed_total",
			Help:      "Processes killed by fleet pattern termination",
		}),

		artifactBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_bytes_total",
			Help:      "Bytes written to result artifacts",
		}, []string{"artifact"}),

		batchProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_progress",
			Help:      "Fraction of batch runs finished (0.0 to 1.0)",
		}),

		batchRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_runs",
			Help:      "Number of runs scheduled in the batch",
		}),

		currentRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_run_info",
			Help:      "The run in progress (value always 1, absent between runs)",
		}, []string{"variant", "role"}),

		total: cfg.BatchSize,
	}

	registry.MustRegister(
		c.info,
		c.runsTotal,
		c.phaseDuration,
		c.terminationsTotal,
		c.toolFailures,
		c.fleetKilled,
		c.artifactBytes,
		c.batchProgress,
		c.batchRuns,
		c.currentRun,
	)

	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	c.info.WithLabelValues(version).Set(1)
	c.batchRuns.Set(float64(cfg.BatchSize))

	return c
}

// RunStarted marks variant as the run in progress.
func (c *Collector) RunStarted(variant, role string) {
	c.currentRun.Reset()
	c.currentRun.WithLabelValues(variant, role).Set(1)
}

// RunFinished records the outcome of a run and advances batch progress.
func (c *Collector) RunFinished(role string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	c.runsTotal.WithLabelValues(role, result).Inc()
	c.currentRun.Reset()

	c.mu.Lock()
	c.finished++
	progress := 0.0
	if c.total > 0 {
		progress = float64(c.finished) / float64(c.total)
	}
	c.mu.Unlock()

	c.batchProgress.Set(min(progress, 1))
}

// ObservePhase records the wall time of a lifecycle step.
func (c *Collector) ObservePhase(phase string, d time.Duration) {
	c.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// ObserveTermination implements process.TerminationObserver.
func (c *Collector) ObserveTermination(kind process.Kind, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.terminationsTotal.WithLabelValues(string(kind), result).Inc()
}

// ObserveFleetKill implements process.TerminationObserver.
func (c *Collector) ObserveFleetKill(killed int) {
	c.fleetKilled.Add(float64(killed))
}

// ToolFailed counts a tool run that exited non-zero.
func (c *Collector) ToolFailed(tool string) {
	c.toolFailures.WithLabelValues(tool).Inc()
}

// ArtifactWritten counts artifact bytes. Its signature matches
// results.WriteFunc.
func (c *Collector) ArtifactWritten(_ string, artifact string, bytes int) {
	c.artifactBytes.WithLabelValues(artifact).Add(float64(bytes))
}

var _ process.TerminationObserver = (*Collector)(nil)
