package lifecycle

import (
	"time"

	"github.com/randomizedcoder/http-bench-driver/internal/process"
)

// Role is what a run benchmarks.
type Role int

const (
	// RoleOrigin benchmarks a server directly.
	RoleOrigin Role = iota

	// RoleProxy benchmarks a proxy in front of an origin.
	RoleProxy
)

// String returns a human-readable name for the role.
func (r Role) String() string {
	switch r {
	case RoleOrigin:
		return "origin"
	case RoleProxy:
		return "proxy"
	default:
		return "unknown"
	}
}

// Run is one benchmark. Runs are built by the Sequencer so the target URL
// and output directory follow from the variant and role alone.
type Run struct {
	Variant process.Variant
	Role    Role

	// Origin is the origin a proxy forwards to. Nil for origin runs.
	Origin *process.Variant

	TargetURL string
	OutputDir string
}

// Name returns the variant name, which also keys the output directory.
func (r Run) Name() string {
	return r.Variant.Name
}

// PhaseTiming is the wall time of one timed step of a run.
type PhaseTiming struct {
	Name     string
	Duration time.Duration
}

// Timed step names.
const (
	StepWarmUp          = "warmup"
	StepProbe           = "probe"
	StepSettle          = "settle"
	StepLoad            = "load"
	StepLoadNoKeepAlive = "load_no_keepalive"
	StepLoadKeepAlive   = "load_keepalive"
	StepTerminate       = "terminate"
)

// Report describes a finished run, successful or not.
type Report struct {
	Run     Run
	Started time.Time
	Ended   time.Time

	// Phase is the last phase reached before the run returned to idle.
	Phase Phase

	Timings   []PhaseTiming
	Artifacts []string

	// ToolFailures lists tool errors recorded under the record policy.
	ToolFailures []error

	// TerminatedAt holds when each role's process was reaped.
	TerminatedAt map[Role]time.Time

	// StderrErrors counts error lines each role's process wrote to stderr.
	StderrErrors map[Role]int

	Err error
}

// Duration returns the run's wall time.
func (r *Report) Duration() time.Duration {
	return r.Ended.Sub(r.Started)
}

// StderrErrorTotal returns the stderr error lines of all roles.
func (r *Report) StderrErrorTotal() int {
	n := 0
	for _, c := range r.StderrErrors {
		n += c
	}
	return n
}

// Succeeded reports whether the run completed without error.
func (r *Report) Succeeded() bool {
	return r.Err == nil
}
