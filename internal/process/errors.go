package process

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawn matches every SpawnError through errors.Is.
	ErrSpawn = errors.New("spawn failed")

	// ErrTermination matches every TerminationError through errors.Is.
	ErrTermination = errors.New("termination failed")
)

// SpawnError reports a variant that could not be started.
type SpawnError struct {
	Variant string
	Reason  string
	Err     error
}

func (e *SpawnError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("spawn %s: %s", e.Variant, e.Reason)
	}
	return fmt.Sprintf("spawn %s: %s: %v", e.Variant, e.Reason, e.Err)
}

func (e *SpawnError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSpawn}
	}
	return []error{ErrSpawn, e.Err}
}

// TerminationError reports a variant that could not be signalled.
type TerminationError struct {
	Variant string
	Pid     int
	Err     error
}

func (e *TerminationError) Error() string {
	return fmt.Sprintf("terminate %s (pid %d): %v", e.Variant, e.Pid, e.Err)
}

func (e *TerminationError) Unwrap() []error {
	return []error{ErrTermination, e.Err}
}
