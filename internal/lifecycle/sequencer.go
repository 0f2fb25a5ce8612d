package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/randomizedcoder/http-bench-driver/internal/process"
	"github.com/randomizedcoder/http-bench-driver/internal/results"
)

// StrategySource returns the strategy for a variant kind.
type StrategySource interface {
	For(kind process.Kind) (process.Strategy, error)
}

// Callbacks contains optional callback functions for run events.
type Callbacks struct {
	// OnPhase is called on every phase transition.
	OnPhase func(run Run, from, to Phase)

	// OnStep is called when a timed step finishes.
	OnStep func(run Run, step string, d time.Duration)

	// OnSpawned is called when a process of the run starts.
	OnSpawned func(run Run, role Role, pid int)

	// OnTerminated is called when a process of the run has been reaped.
	OnTerminated func(run Run, role Role, kind process.Kind, at time.Time, err error)

	// OnToolResult is called after every probe or load-test invocation.
	OnToolResult func(run Run, step string, res process.ToolResult)
}

// Config holds configuration for a Sequencer.
type Config struct {
	Strategies StrategySource
	Collector  *results.Collector
	Readiness  Readiness

	Probe  process.ProbeConfig
	Load   process.LoadConfig
	Phases PhaseMode
	Policy ToolPolicy

	// URLHost is the host tools are pointed at (default "localhost").
	URLHost string

	// DialHost is the host readiness polls (default "127.0.0.1").
	DialHost string

	OriginPort int
	ProxyPort  int

	Logger    *slog.Logger
	Callbacks Callbacks
}

// Sequencer runs one benchmark at a time.
type Sequencer struct {
	strategies StrategySource
	collector  *results.Collector
	readiness  Readiness
	probe      process.ProbeConfig
	load       process.LoadConfig
	phases     PhaseMode
	policy     ToolPolicy
	urlHost    string
	dialHost   string
	originPort int
	proxyPort  int
	logger     *slog.Logger
	callbacks  Callbacks
}

// New creates a Sequencer with the given configuration.
func New(cfg Config) *Sequencer {
	s := &Sequencer{
		strategies: cfg.Strategies,
		collector:  cfg.Collector,
		readiness:  cfg.Readiness,
		probe:      cfg.Probe,
		load:       cfg.Load,
		phases:     cfg.Phases,
		policy:     cfg.Policy,
		urlHost:    cfg.URLHost,
		dialHost:   cfg.DialHost,
		originPort: cfg.OriginPort,
		proxyPort:  cfg.ProxyPort,
		logger:     cfg.Logger,
		callbacks:  cfg.Callbacks,
	}
	if s.readiness == nil {
		s.readiness = DefaultPoll()
	}
	if s.probe.BinaryPath == "" {
		s.probe = process.DefaultProbeConfig()
	}
	if s.load.BinaryPath == "" {
		s.load = process.DefaultLoadConfig()
	}
	if s.phases == "" {
		s.phases = PhasesBoth
	}
	if s.policy == "" {
		s.policy = PolicyRecord
	}
	if s.urlHost == "" {
		s.urlHost = "localhost"
	}
	if s.dialHost == "" {
		s.dialHost = "127.0.0.1"
	}
	if s.originPort == 0 {
		s.originPort = 3000
	}
	if s.proxyPort == 0 {
		s.proxyPort = 3001
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.collector == nil {
		s.collector = results.NewCollector(results.CollectorConfig{Logger: s.logger})
	}
	return s
}

// OriginRun builds the run that benchmarks v directly.
func (s *Sequencer) OriginRun(v process.Variant) Run {
	return Run{
		Variant:   v,
		Role:      RoleOrigin,
		TargetURL: s.url(s.originPort),
		OutputDir: s.collector.Dir(v.Name),
	}
}

// ProxyRun builds the run that benchmarks proxy in front of origin.
func (s *Sequencer) ProxyRun(proxy, origin process.Variant) Run {
	return Run{
		Variant:   proxy,
		Role:      RoleProxy,
		Origin:    &origin,
		TargetURL: s.url(s.proxyPort),
		OutputDir: s.collector.Dir(proxy.Name),
	}
}

func (s *Sequencer) url(port int) string {
	return "http://" + net.JoinHostPort(s.urlHost, strconv.Itoa(port))
}

func (s *Sequencer) dialAddr(port int) string {
	return net.JoinHostPort(s.dialHost, strconv.Itoa(port))
}

// loadPhase is one load-generator invocation.
type loadPhase struct {
	phase     Phase
	step      string
	artifact  string
	keepAlive bool
}

// loadPhases returns the load phases in the order they run.
func (s *Sequencer) loadPhases() []loadPhase {
	if s.phases == PhasesNoKeepAlive {
		return []loadPhase{
			{PhaseLoadTesting1, StepLoad, results.ArtifactLoad, false},
		}
	}
	return []loadPhase{
		{PhaseLoadTesting1, StepLoadNoKeepAlive, results.ArtifactLoadNoKeepAlive, false},
		{PhaseLoadTesting2, StepLoadKeepAlive, results.ArtifactLoadKeepAlive, true},
	}
}

// Commands returns the command lines a run would execute, in order.
func (s *Sequencer) Commands(run Run) []string {
	var cmds []string
	if run.Origin != nil {
		cmds = append(cmds, run.Origin.CommandLine())
	}
	cmds = append(cmds, run.Variant.CommandLine())
	cmds = append(cmds, process.CommandString(s.probe.BinaryPath, s.probe.ProbeArgs(run.TargetURL)))
	for _, lp := range s.loadPhases() {
		cmds = append(cmds, process.CommandString(s.load.BinaryPath, s.load.LoadArgs(run.TargetURL, lp.keepAlive)))
	}
	return cmds
}

// Execute performs run from spawn to collection. Every process spawned by
// the run is terminated and reaped before Execute returns, whatever the
// outcome. The returned report is never nil.
func (s *Sequencer) Execute(ctx context.Context, run Run) (*Report, error) {
	rep := &Report{
		Run:          run,
		Started:      time.Now(),
		TerminatedAt: make(map[Role]time.Time),
		StderrErrors: make(map[Role]int),
	}
	t := &tracker{seq: s, run: run, report: rep}

	s.logger.Info("run_starting",
		"variant", run.Name(),
		"role", run.Role.String(),
		"url", run.TargetURL,
	)

	err := s.execute(ctx, run, rep, t)

	rep.Ended = time.Now()
	rep.Phase = t.phase
	if t.phase != PhaseIdle {
		t.to(PhaseIdle)
	}
	rep.Err = err

	if err != nil {
		s.logger.Error("run_failed",
			"variant", run.Name(),
			"role", run.Role.String(),
			"phase", rep.Phase.String(),
			"duration", rep.Duration().String(),
			"error", err,
		)
		return rep, err
	}

	s.logger.Info("run_complete",
		"variant", run.Name(),
		"role", run.Role.String(),
		"duration", rep.Duration().String(),
		"artifacts", strings.Join(rep.Artifacts, ","),
		"tool_failures", len(rep.ToolFailures),
		"stderr_errors", rep.StderrErrorTotal(),
	)
	return rep, nil
}

func (s *Sequencer) execute(ctx context.Context, run Run, rep *Report, t *tracker) (err error) {
	dir, err := s.collector.Prepare(run.Name())
	if err != nil {
		return err
	}

	sc := newScope(s.logger)
	defer func() {
		if sc.empty() {
			return
		}
		start := time.Now()
		cerr := sc.close(ctx,
			func(e scopeEntry, at time.Time, terr error) {
				rep.TerminatedAt[e.role] = at
				rep.StderrErrors[e.role] = e.handle.StderrErrors()
				if s.callbacks.OnTerminated != nil {
					s.callbacks.OnTerminated(run, e.role, e.handle.Variant().Kind, at, terr)
				}
			},
			func(e scopeEntry, out []byte) error {
				return dir.Write(e.artifact, out)
			},
		)
		t.step(StepTerminate, time.Since(start))
		rep.Artifacts = dir.Written()

		if cerr == nil {
			t.to(PhaseTerminated)
			t.to(PhaseCollected)
		}
		// cleanup failures never replace the error that ended the run
		err = errors.Join(err, cerr)
	}()

	originArtifact := results.ArtifactServer
	if run.Role == RoleProxy {
		originArtifact = results.ArtifactOrigin
	}

	// Origin first. For proxy runs this is the paired origin.
	origin := run.Variant
	if run.Origin != nil {
		origin = *run.Origin
	}
	h, err := s.spawn(ctx, sc, run, RoleOrigin, origin, s.originPort, originArtifact)
	if err != nil {
		return err
	}
	t.to(PhaseSpawned)
	t.to(PhaseWarmingUp)

	if err := s.warmUp(ctx, t, h, s.originPort); err != nil {
		return err
	}

	if run.Role == RoleProxy {
		ph, err := s.spawn(ctx, sc, run, RoleProxy, run.Variant, s.proxyPort, results.ArtifactProxy)
		if err != nil {
			return err
		}
		if err := s.warmUp(ctx, t, ph, s.proxyPort); err != nil {
			return err
		}
	}

	if err := s.runTool(ctx, t, rep, dir, StepProbe, results.ArtifactProbe,
		s.probe.BinaryPath, s.probe.ProbeArgs(run.TargetURL)); err != nil {
		return err
	}
	t.to(PhaseProbed)

	start := time.Now()
	if err := s.readiness.Settle(ctx); err != nil {
		return err
	}
	t.step(StepSettle, time.Since(start))

	for _, lp := range s.loadPhases() {
		t.to(lp.phase)
		if err := s.runTool(ctx, t, rep, dir, lp.step, lp.artifact,
			s.load.BinaryPath, s.load.LoadArgs(run.TargetURL, lp.keepAlive)); err != nil {
			return err
		}
	}

	return nil
}

func (s *Sequencer) spawn(ctx context.Context, sc *scope, run Run, role Role, v process.Variant, port int, artifact string) (*process.Handle, error) {
	strategy, err := s.strategies.For(v.Kind)
	if err != nil {
		return nil, &process.SpawnError{Variant: v.Name, Reason: "no strategy", Err: err}
	}
	h, err := strategy.Spawn(ctx, v, port)
	if err != nil {
		return nil, err
	}
	sc.add(scopeEntry{role: role, strategy: strategy, handle: h, artifact: artifact})

	if s.callbacks.OnSpawned != nil {
		s.callbacks.OnSpawned(run, role, h.Pid())
	}
	return h, nil
}

func (s *Sequencer) warmUp(ctx context.Context, t *tracker, h *process.Handle, port int) error {
	start := time.Now()
	if err := s.readiness.WarmUp(ctx, h, s.dialAddr(port)); err != nil {
		return err
	}
	t.step(StepWarmUp, time.Since(start))

	s.logger.Debug("target_ready",
		"variant", h.Variant().Name,
		"port", port,
		"waited", time.Since(start).String(),
	)
	return nil
}

// runTool runs a probe or load-test step and persists its stdout. The
// output is written whatever the exit status; the policy decides whether
// a non-zero exit ends the run. A tool that could not start always does.
func (s *Sequencer) runTool(ctx context.Context, t *tracker, rep *Report, dir *results.RunDir, step, artifact, binary string, args []string) error {
	s.logger.Debug("tool_starting",
		"variant", t.run.Name(),
		"step", step,
		"command", process.CommandString(binary, args),
	)

	res := process.RunTool(ctx, binary, args)
	t.step(step, res.Duration)
	if s.callbacks.OnToolResult != nil {
		s.callbacks.OnToolResult(t.run, step, res)
	}

	if res.Started() {
		if err := dir.Write(artifact, res.Output); err != nil {
			return err
		}
	}
	if res.Err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	toolErr := &ToolError{
		Tool:     binary,
		Variant:  t.run.Name(),
		Step:     step,
		ExitCode: res.ExitCode,
		Stderr:   strings.TrimSpace(string(res.Stderr)),
		Err:      res.Err,
	}
	if !res.Started() {
		return toolErr
	}

	s.logger.Warn("tool_failed",
		"variant", t.run.Name(),
		"step", step,
		"exit_code", res.ExitCode,
		"policy", string(s.policy),
		"error", toolErr,
	)
	if s.policy == PolicyFail {
		return toolErr
	}
	rep.ToolFailures = append(rep.ToolFailures, toolErr)
	return nil
}

// tracker follows a run through its phases.
type tracker struct {
	seq    *Sequencer
	run    Run
	report *Report
	phase  Phase
}

func (t *tracker) to(next Phase) {
	from := t.phase
	if !from.CanTransition(next) {
		// a sequencing bug, not a run failure
		t.seq.logger.Error("invalid_phase_transition",
			"variant", t.run.Name(),
			"from", from.String(),
			"to", next.String(),
		)
	}
	t.phase = next

	t.seq.logger.Debug("phase_transition",
		"variant", t.run.Name(),
		"from", from.String(),
		"to", next.String(),
	)
	if t.seq.callbacks.OnPhase != nil {
		t.seq.callbacks.OnPhase(t.run, from, next)
	}
}

func (t *tracker) step(name string, d time.Duration) {
	t.report.Timings = append(t.report.Timings, PhaseTiming{Name: name, Duration: d})

	t.seq.logger.Info("phase_complete",
		"variant", t.run.Name(),
		"phase", name,
		"duration", d.String(),
	)
	if t.seq.callbacks.OnStep != nil {
		t.seq.callbacks.OnStep(t.run, name, d)
	}
}

// String summarizes the sequencer configuration for logs.
func (s *Sequencer) String() string {
	return fmt.Sprintf("phases=%s policy=%s origin=:%d proxy=:%d", s.phases, s.policy, s.originPort, s.proxyPort)
}
