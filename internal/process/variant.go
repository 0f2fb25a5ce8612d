package process

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Kind selects how a variant is launched and stopped.
type Kind string

const (
	// KindDirect runs the compiled target binary and kills its handle.
	KindDirect Kind = "direct"

	// KindFleet runs a binary that forks worker processes.
	// Termination matches process names, since no single pid owns the fleet.
	KindFleet Kind = "fleet"

	// KindDaemon runs an external server with a config file and stops it
	// with SIGTERM to its pid.
	KindDaemon Kind = "daemon"

	// KindShell runs the target binary through a shell wrapper.
	KindShell Kind = "shell"
)

// Kinds lists every supported kind in display order.
var Kinds = []Kind{KindDirect, KindFleet, KindDaemon, KindShell}

// ParseKind converts a string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown variant kind %q (want direct, fleet, daemon or shell)", s)
}

// Variant identifies one target under test. Variants are values: once
// resolved they are passed around by copy and never mutated.
type Variant struct {
	// Name is the logical name, also used as the results directory name.
	Name string

	// Kind selects the spawn and termination strategy.
	Kind Kind

	// Path is the program the variant is about: the compiled target,
	// or the daemon binary for KindDaemon.
	Path string

	// Command and Args are what is actually executed. Command differs
	// from Path only for KindShell, where it is the shell.
	Command string
	Args    []string

	// Pattern matches process names of a fleet (KindFleet only).
	Pattern string
}

// CommandLine returns the command that is executed, quoted so it can be
// pasted into a POSIX shell.
func (v Variant) CommandLine() string {
	return CommandString(v.Command, v.Args)
}

// Definition describes a variant before its paths are resolved.
type Definition struct {
	Name       string
	Kind       Kind
	Binary     string // optional override of the resolved program
	ConfigFile string // daemon config; default <WorkDir>/<name>/nginx.conf
	Pattern    string // fleet process-name regexp; default ^<name>$
}

// Resolver turns definitions into variants with concrete paths.
type Resolver struct {
	// BinDir holds compiled targets (default target/release).
	BinDir string

	// DaemonBinary is the default program for KindDaemon.
	DaemonBinary string

	// Shell is the wrapper used for KindShell.
	Shell string

	// WorkDir anchors relative daemon config paths.
	WorkDir string
}

// shellScript replaces the shell with the target so a kill of the
// handle reaches the target itself. stderr is folded into stdout.
const shellScript = `exec "$0" 2>&1`

// Resolve builds the Variant for a definition.
func (r Resolver) Resolve(def Definition) (Variant, error) {
	if err := ValidateName(def.Name); err != nil {
		return Variant{}, err
	}

	v := Variant{Name: def.Name, Kind: def.Kind}

	targetPath := def.Binary
	if targetPath == "" {
		targetPath = filepath.Join(r.BinDir, def.Name)
	}

	switch def.Kind {
	case KindDirect:
		v.Path = targetPath
		v.Command = targetPath

	case KindFleet:
		v.Path = targetPath
		v.Command = targetPath
		v.Pattern = def.Pattern
		if v.Pattern == "" {
			v.Pattern = "^" + regexp.QuoteMeta(fleetCommName(def.Name)) + "$"
		}
		if _, err := regexp.Compile(v.Pattern); err != nil {
			return Variant{}, fmt.Errorf("variant %s: invalid pattern: %w", def.Name, err)
		}

	case KindDaemon:
		v.Path = def.Binary
		if v.Path == "" {
			v.Path = r.DaemonBinary
		}
		v.Command = v.Path
		conf := def.ConfigFile
		if conf == "" {
			conf = filepath.Join(def.Name, "nginx.conf")
		}
		if !filepath.IsAbs(conf) {
			conf = filepath.Join(r.WorkDir, conf)
		}
		v.Args = []string{"-c", conf, "-g", "daemon off;"}

	case KindShell:
		v.Path = targetPath
		v.Command = r.Shell
		v.Args = []string{"-c", shellScript, targetPath}

	default:
		return Variant{}, fmt.Errorf("variant %s: unknown kind %q", def.Name, def.Kind)
	}

	return v, nil
}

// ValidateName rejects names that cannot be used as a results directory.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("variant name must not be empty")
	case name == "." || name == "..":
		return fmt.Errorf("variant name %q is not allowed", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("variant name %q must not contain path separators", name)
	}
	return nil
}

// fleetCommName returns the kernel comm name for a program name.
// Linux truncates comm to 15 bytes.
func fleetCommName(name string) string {
	const maxComm = 15
	if len(name) > maxComm {
		return name[:maxComm]
	}
	return name
}
