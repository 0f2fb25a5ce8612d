// Package stats provides batch statistics for http-bench-driver: per-step
// timing distributions and the exit summary.
package stats

import (
	"slices"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// stepOrder lists lifecycle steps in the order they occur in a run.
// Unknown steps sort after these, alphabetically.
var stepOrder = []string{
	"warmup",
	"probe",
	"settle",
	"load",
	"load_no_keepalive",
	"load_keepalive",
	"terminate",
}

// PhaseStat summarizes the wall time of one step across the batch.
type PhaseStat struct {
	Step  string
	Count int
	P50   time.Duration
	P95   time.Duration
	Max   time.Duration
}

type phaseDigest struct {
	digest *tdigest.TDigest
	count  int
	max    time.Duration
}

// PhaseTimings accumulates step durations. Safe for concurrent use.
type PhaseTimings struct {
	mu     sync.Mutex
	phases map[string]*phaseDigest
}

// NewPhaseTimings creates an empty PhaseTimings.
func NewPhaseTimings() *PhaseTimings {
	return &PhaseTimings{phases: make(map[string]*phaseDigest)}
}

// Add records one observation of step.
func (p *PhaseTimings) Add(step string, d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pd, ok := p.phases[step]
	if !ok {
		pd = &phaseDigest{digest: tdigest.NewWithCompression(100)}
		p.phases[step] = pd
	}
	pd.digest.Add(float64(d), 1)
	pd.count++
	pd.max = max(pd.max, d)
}

// Stats returns one PhaseStat per observed step, in run order.
func (p *PhaseTimings) Stats() []PhaseStat {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]PhaseStat, 0, len(p.phases))
	for step, pd := range p.phases {
		out = append(out, PhaseStat{
			Step:  step,
			Count: pd.count,
			P50:   time.Duration(pd.digest.Quantile(0.50)),
			P95:   time.Duration(pd.digest.Quantile(0.95)),
			Max:   pd.max,
		})
	}

	slices.SortFunc(out, func(a, b PhaseStat) int {
		ia, ib := stepIndex(a.Step), stepIndex(b.Step)
		if ia != ib {
			return ia - ib
		}
		if a.Step < b.Step {
			return -1
		}
		if a.Step > b.Step {
			return 1
		}
		return 0
	})
	return out
}

func stepIndex(step string) int {
	if i := slices.Index(stepOrder, step); i >= 0 {
		return i
	}
	return len(stepOrder)
}
