package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/randomizedcoder/http-bench-driver/internal/process"
)

// VariantSpec describes one origin in a batch file.
type VariantSpec struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind,omitempty"` // direct (default), fleet, daemon, shell

	// Binary overrides the executable (daemon: the server binary).
	Binary string `yaml:"binary,omitempty"`

	// Config is the daemon configuration file.
	Config string `yaml:"config,omitempty"`

	// Pattern is the fleet process-name pattern.
	Pattern string `yaml:"pattern,omitempty"`

	// PairOnly origins serve proxies but are not benchmarked themselves.
	PairOnly bool `yaml:"pair_only,omitempty"`
}

// ProxySpec describes one proxy in a batch file.
type ProxySpec struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind,omitempty"`
	Binary string `yaml:"binary,omitempty"`

	// Origin names the origin the proxy forwards to.
	Origin string `yaml:"origin"`
}

// Batch is the ordered list of runs: origins first, then proxies.
type Batch struct {
	Origins []VariantSpec `yaml:"origins"`
	Proxies []ProxySpec   `yaml:"proxies"`
}

// DefaultBatch returns the compiled-in batch.
func DefaultBatch() *Batch {
	return &Batch{
		Origins: []VariantSpec{
			{Name: "origin-actix", Kind: "direct"},
			{Name: "origin-hyper", Kind: "direct"},
			{Name: "origin-pingora", Kind: "direct"},
			{Name: "origin-nginx", Kind: "daemon"},
		},
		Proxies: []ProxySpec{
			{Name: "proxy-actix", Kind: "direct", Origin: "origin-hyper"},
			{Name: "proxy-hyper", Kind: "direct", Origin: "origin-hyper"},
			{Name: "proxy-pingora", Kind: "direct", Origin: "origin-hyper"},
		},
	}
}

// LoadBatch reads and validates a YAML batch file.
func LoadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	b, err := ParseBatch(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// ParseBatch decodes and validates a YAML batch document. Unknown keys are
// rejected so a typo never silently drops a setting.
func ParseBatch(data []byte) (*Batch, error) {
	var b Batch
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("parse batch: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Validate checks names, kinds and proxy pairings.
func (b *Batch) Validate() error {
	var errs []error
	seen := make(map[string]bool)

	checkName := func(field, name string) {
		if err := process.ValidateName(name); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error()})
			return
		}
		if seen[name] {
			errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf("duplicate name %q", name)})
		}
		seen[name] = true
	}
	checkKind := func(field, kind string) {
		if kind == "" {
			return
		}
		if _, err := process.ParseKind(kind); err != nil {
			errs = append(errs, ValidationError{Field: field, Message: err.Error()})
		}
	}

	for i, o := range b.Origins {
		field := fmt.Sprintf("origins[%d]", i)
		checkName(field+".name", o.Name)
		checkKind(field+".kind", o.Kind)
		if o.Config != "" && o.kind() != process.KindDaemon {
			errs = append(errs, ValidationError{Field: field + ".config", Message: "only daemon variants take a config file"})
		}
		if o.Pattern != "" && o.kind() != process.KindFleet {
			errs = append(errs, ValidationError{Field: field + ".pattern", Message: "only fleet variants take a pattern"})
		}
	}

	for i, p := range b.Proxies {
		field := fmt.Sprintf("proxies[%d]", i)
		checkName(field+".name", p.Name)
		checkKind(field+".kind", p.Kind)
		if p.Origin == "" {
			errs = append(errs, ValidationError{Field: field + ".origin", Message: "is required"})
		} else if _, ok := b.Origin(p.Origin); !ok {
			errs = append(errs, ValidationError{
				Field:   field + ".origin",
				Message: fmt.Sprintf("unknown origin %q", p.Origin),
			})
		}
	}

	if b.Len() == 0 {
		errs = append(errs, ValidationError{Field: "batch", Message: "no runs defined"})
	}

	return errors.Join(errs...)
}

// Origin returns the origin named name.
func (b *Batch) Origin(name string) (VariantSpec, bool) {
	for _, o := range b.Origins {
		if o.Name == name {
			return o, true
		}
	}
	return VariantSpec{}, false
}

// Len returns the number of runs in the batch.
func (b *Batch) Len() int {
	n := len(b.Proxies)
	for _, o := range b.Origins {
		if !o.PairOnly {
			n++
		}
	}
	return n
}

// UsesKind reports whether any variant of the batch has the given kind.
func (b *Batch) UsesKind(kind process.Kind) bool {
	for _, o := range b.Origins {
		if o.kind() == kind {
			return true
		}
	}
	for _, p := range b.Proxies {
		if p.kind() == kind {
			return true
		}
	}
	return false
}

// Filter returns a batch holding only the named runs, in batch order.
// Origins a kept proxy depends on stay in the batch as pair-only. It is
// an error for the filtered batch to hold no runs.
func (b *Batch) Filter(only []string) (*Batch, error) {
	if len(only) == 0 {
		return b, nil
	}

	var unknown []string
	for _, name := range only {
		_, isOrigin := b.Origin(name)
		isProxy := slices.ContainsFunc(b.Proxies, func(p ProxySpec) bool { return p.Name == name })
		if !isOrigin && !isProxy {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown variants: %s", strings.Join(unknown, ", "))
	}

	out := &Batch{}
	needed := make(map[string]bool)
	for _, p := range b.Proxies {
		if slices.Contains(only, p.Name) {
			out.Proxies = append(out.Proxies, p)
			needed[p.Origin] = true
		}
	}
	for _, o := range b.Origins {
		switch {
		case slices.Contains(only, o.Name) && !o.PairOnly:
			out.Origins = append(out.Origins, o)
		case needed[o.Name]:
			o.PairOnly = true
			out.Origins = append(out.Origins, o)
		}
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("no runs selected by %s: pair-only origins only run behind a proxy", strings.Join(only, ", "))
	}
	return out, nil
}

func (o VariantSpec) kind() process.Kind {
	return kindOrDefault(o.Kind)
}

// Definition converts the entry for the process resolver.
func (o VariantSpec) Definition() process.Definition {
	return process.Definition{
		Name:       o.Name,
		Kind:       o.kind(),
		Binary:     o.Binary,
		ConfigFile: o.Config,
		Pattern:    o.Pattern,
	}
}

func (p ProxySpec) kind() process.Kind {
	return kindOrDefault(p.Kind)
}

// Definition converts the entry for the process resolver.
func (p ProxySpec) Definition() process.Definition {
	return process.Definition{
		Name:   p.Name,
		Kind:   p.kind(),
		Binary: p.Binary,
	}
}

func kindOrDefault(s string) process.Kind {
	if s == "" {
		return process.KindDirect
	}
	k, err := process.ParseKind(s)
	if err != nil {
		return process.Kind(s)
	}
	return k
}
