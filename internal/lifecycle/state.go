// Package lifecycle sequences a single benchmark run: spawn, warm-up, probe,
// load-test, terminate and collect.
package lifecycle

// Phase is the state of a run.
type Phase int

const (
	// PhaseIdle is the state before spawn and after collection or abort.
	PhaseIdle Phase = iota

	// PhaseSpawned indicates the (first) target process has been started.
	PhaseSpawned

	// PhaseWarmingUp indicates the sequencer is waiting for readiness.
	// For proxy runs this covers the origin warm-up, the proxy spawn and
	// the proxy warm-up.
	PhaseWarmingUp

	// PhaseProbed indicates the probe request has completed.
	PhaseProbed

	// PhaseLoadTesting1 is the keep-alive disabled load phase.
	PhaseLoadTesting1

	// PhaseLoadTesting2 is the keep-alive enabled load phase.
	PhaseLoadTesting2

	// PhaseTerminated indicates every process of the run has been stopped
	// and reaped.
	PhaseTerminated

	// PhaseCollected indicates captured process output has been persisted.
	PhaseCollected
)

// String returns a human-readable name for the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSpawned:
		return "spawned"
	case PhaseWarmingUp:
		return "warming_up"
	case PhaseProbed:
		return "probed"
	case PhaseLoadTesting1:
		return "load_testing_1"
	case PhaseLoadTesting2:
		return "load_testing_2"
	case PhaseTerminated:
		return "terminated"
	case PhaseCollected:
		return "collected"
	default:
		return "unknown"
	}
}

// transitions lists the forward edges of the run state machine. Any phase
// may also return to PhaseIdle, which is how an aborted run ends.
var transitions = map[Phase][]Phase{
	PhaseIdle:         {PhaseSpawned},
	PhaseSpawned:      {PhaseWarmingUp, PhaseTerminated},
	PhaseWarmingUp:    {PhaseProbed, PhaseTerminated},
	PhaseProbed:       {PhaseLoadTesting1, PhaseTerminated},
	PhaseLoadTesting1: {PhaseLoadTesting2, PhaseTerminated},
	PhaseLoadTesting2: {PhaseTerminated},
	PhaseTerminated:   {PhaseCollected},
	PhaseCollected:    {PhaseIdle},
}

// CanTransition reports whether a run may move from p to next.
func (p Phase) CanTransition(next Phase) bool {
	if next == PhaseIdle {
		return p != PhaseIdle
	}
	for _, allowed := range transitions[p] {
		if allowed == next {
			return true
		}
	}
	return false
}
