package orchestrator

import (
	"fmt"

	"github.com/randomizedcoder/http-bench-driver/internal/config"
	"github.com/randomizedcoder/http-bench-driver/internal/lifecycle"
	"github.com/randomizedcoder/http-bench-driver/internal/preflight"
	"github.com/randomizedcoder/http-bench-driver/internal/process"
)

// Plan is the ordered list of runs of a batch: origins first, then proxies.
type Plan struct {
	Runs []lifecycle.Run
}

// BuildPlan resolves every batch entry and builds its run. Pair-only
// origins are resolved for their proxies but get no run of their own.
func BuildPlan(b *config.Batch, resolver process.Resolver, seq *lifecycle.Sequencer) (*Plan, error) {
	origins := make(map[string]process.Variant, len(b.Origins))
	plan := &Plan{Runs: make([]lifecycle.Run, 0, b.Len())}

	for _, o := range b.Origins {
		v, err := resolver.Resolve(o.Definition())
		if err != nil {
			return nil, fmt.Errorf("origin %s: %w", o.Name, err)
		}
		origins[o.Name] = v
		if !o.PairOnly {
			plan.Runs = append(plan.Runs, seq.OriginRun(v))
		}
	}

	for _, p := range b.Proxies {
		origin, ok := origins[p.Origin]
		if !ok {
			return nil, fmt.Errorf("proxy %s: unknown origin %q", p.Name, p.Origin)
		}
		v, err := resolver.Resolve(p.Definition())
		if err != nil {
			return nil, fmt.Errorf("proxy %s: %w", p.Name, err)
		}
		plan.Runs = append(plan.Runs, seq.ProxyRun(v, origin))
	}

	return plan, nil
}

// Len returns the number of runs.
func (p *Plan) Len() int {
	return len(p.Runs)
}

// UsesKind reports whether any process of the plan has the given kind.
func (p *Plan) UsesKind(kind process.Kind) bool {
	for _, v := range p.variants() {
		if v.Kind == kind {
			return true
		}
	}
	return false
}

// Executables lists the compiled targets the plan starts, once each.
// Daemon binaries are checked separately as a tool.
func (p *Plan) Executables() []preflight.Executable {
	seen := make(map[string]bool)
	var out []preflight.Executable
	for _, v := range p.variants() {
		if v.Kind == process.KindDaemon || seen[v.Name] {
			continue
		}
		seen[v.Name] = true
		out = append(out, preflight.Executable{Variant: v.Name, Path: v.Path})
	}
	return out
}

// variants returns every process of the plan in start order.
func (p *Plan) variants() []process.Variant {
	var out []process.Variant
	for _, r := range p.Runs {
		if r.Origin != nil {
			out = append(out, *r.Origin)
		}
		out = append(out, r.Variant)
	}
	return out
}
