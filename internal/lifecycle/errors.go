package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// ErrToolFailed matches every ToolError through errors.Is.
var ErrToolFailed = errors.New("tool failed")

// ToolError reports a probe or load-generator invocation that did not
// succeed.
type ToolError struct {
	Tool     string
	Variant  string
	Step     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s %s for %s: %v", e.Tool, e.Step, e.Variant, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ToolError) Unwrap() []error {
	return []error{ErrToolFailed, e.Err}
}

// ToolPolicy decides what a non-zero tool exit does to the batch.
type ToolPolicy string

const (
	// PolicyRecord persists output, logs and counts the failure, and
	// continues.
	PolicyRecord ToolPolicy = "record"

	// PolicyFail persists output, then aborts once the run's processes
	// have been terminated.
	PolicyFail ToolPolicy = "fail"
)

// ParseToolPolicy parses a policy name.
func ParseToolPolicy(s string) (ToolPolicy, error) {
	switch p := ToolPolicy(strings.ToLower(s)); p {
	case PolicyRecord, PolicyFail:
		return p, nil
	default:
		return "", fmt.Errorf("unknown tool failure policy %q (valid: record, fail)", s)
	}
}

// PhaseMode selects which load phases run.
type PhaseMode string

const (
	// PhasesBoth runs keep-alive disabled, then enabled.
	PhasesBoth PhaseMode = "both"

	// PhasesNoKeepAlive runs a single keep-alive disabled phase, archived
	// as oha.json.
	PhasesNoKeepAlive PhaseMode = "no-keepalive"
)

// ParsePhaseMode parses a phase mode name.
func ParsePhaseMode(s string) (PhaseMode, error) {
	switch m := PhaseMode(strings.ToLower(s)); m {
	case PhasesBoth, PhasesNoKeepAlive:
		return m, nil
	default:
		return "", fmt.Errorf("unknown phase mode %q (valid: both, no-keepalive)", s)
	}
}
