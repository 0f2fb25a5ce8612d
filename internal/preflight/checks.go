// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/http-bench-driver/internal/process"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

func (r *Result) add(c Check) {
	r.Checks = append(r.Checks, c)
	if !c.Passed {
		r.Passed = false
	}
}

// Failed returns the checks that did not pass.
func (r *Result) Failed() []Check {
	var failed []Check
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// Executable is a variant binary that must exist before the batch starts.
type Executable struct {
	Variant string
	Path    string
}

// Options selects what RunAll checks.
type Options struct {
	CurlPath string
	OhaPath  string

	// NginxPath is checked when NeedNginx is set.
	NginxPath string
	NeedNginx bool

	Executables []Executable

	// Host and Ports are checked for being free.
	Host  string
	Ports []int

	// Concurrency sizes the descriptor and ephemeral port checks.
	Concurrency int

	// FS defaults to procfs.NewDefaultFS().
	FS *procfs.FS
}

// toolTimeout bounds each version probe.
const toolTimeout = 5 * time.Second

// RunAll executes all preflight checks.
func RunAll(opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 8+len(opts.Executables)),
		Passed: true,
	}

	result.add(checkFileDescriptors(opts.Concurrency))
	result.add(checkProcessLimit(opts.FS))

	result.add(checkTool("curl", opts.CurlPath, "--version"))
	result.add(checkTool("oha", opts.OhaPath, "--version"))
	if opts.NeedNginx {
		result.add(checkTool("nginx", opts.NginxPath, "-v"))
	}

	for _, e := range opts.Executables {
		result.add(checkExecutable(e))
	}

	host := opts.Host
	if host == "" {
		host = "127.0.0.1"
	}
	for _, port := range opts.Ports {
		result.add(checkPort(host, port))
	}

	// Ephemeral port check (warning only)
	result.add(checkEphemeralPorts(opts.Concurrency))

	return result
}

// checkFileDescriptors verifies the load generator can open its connections.
func checkFileDescriptors(concurrency int) Check {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to read limit: %v", err),
		}
	}

	// One socket per connection, plus pipes and headroom for the targets
	required := concurrency + 256
	actual := int(min(limit.Cur, uint64(1<<31-1)))

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d connections)", actual, required, concurrency),
	}
}

// minProcesses leaves room for fleet workers and the tools.
const minProcesses = 64

// checkProcessLimit verifies fleet variants can fork their workers.
func checkProcessLimit(fs *procfs.FS) Check {
	if fs == nil {
		defaultFS, err := procfs.NewDefaultFS()
		if err != nil {
			return Check{
				Name:    "process_limit",
				Passed:  true,
				Warning: true,
				Message: "unable to check (non-Linux or restricted)",
			}
		}
		fs = &defaultFS
	}

	self, err := fs.Self()
	if err != nil {
		return Check{Name: "process_limit", Passed: true, Warning: true, Message: err.Error()}
	}
	limits, err := self.Limits()
	if err != nil || limits.Processes == 0 {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to determine (assuming OK)",
		}
	}

	actual := int(min(limits.Processes, uint64(1<<31-1)))
	return Check{
		Name:     "process_limit",
		Required: minProcesses,
		Actual:   actual,
		Passed:   actual >= minProcesses,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, minProcesses),
	}
}

// checkTool verifies an external tool is installed and runs.
func checkTool(name, path, versionArg string) Check {
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("not found at %s: %v", path, err),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), toolTimeout)
	defer cancel()

	// nginx -v prints to stderr
	output, err := exec.CommandContext(ctx, resolved, versionArg).CombinedOutput()
	if err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("%s %s failed: %v", resolved, versionArg, err),
		}
	}

	version := "unknown"
	if line, _, _ := strings.Cut(strings.TrimSpace(string(output)), "\n"); line != "" {
		version = line
	}

	return Check{
		Name:    name,
		Passed:  true,
		Message: fmt.Sprintf("found at %s (%s)", resolved, version),
	}
}

// checkExecutable verifies a variant binary exists and is executable.
func checkExecutable(e Executable) Check {
	name := "executable:" + e.Variant
	resolved, err := exec.LookPath(e.Path)
	if err != nil {
		return Check{
			Name:    name,
			Passed:  false,
			Message: fmt.Sprintf("%s: %v", e.Path, err),
		}
	}
	return Check{Name: name, Passed: true, Message: resolved}
}

// checkPort verifies nothing listens on a benchmark port.
func checkPort(host string, port int) Check {
	name := fmt.Sprintf("port_%d", port)
	if err := process.CheckPortFree(host, port); err != nil {
		return Check{Name: name, Passed: false, Message: err.Error()}
	}
	return Check{Name: name, Passed: true, Message: "free"}
}

// checkEphemeralPorts checks if enough ephemeral ports are available.
func checkEphemeralPorts(concurrency int) Check {
	data, err := os.ReadFile("/proc/sys/net/ipv4/ip_local_port_range")
	if err != nil {
		return Check{
			Name:    "ephemeral_ports",
			Passed:  true,
			Warning: true,
			Message: "unable to read port range (non-Linux?)",
		}
	}

	var low, high int
	fmt.Sscanf(string(data), "%d %d", &low, &high)
	available := high - low

	// Keep-alive disabled phases churn connections through TIME_WAIT
	recommended := concurrency * 100

	return Check{
		Name:     "ephemeral_ports",
		Required: recommended,
		Actual:   available,
		Passed:   true, // Don't fail on this
		Warning:  available < recommended,
		Message:  fmt.Sprintf("%d-%d (%d available, recommend %d)", low, high, available, recommended),
	}
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch {
	case name == "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	case name == "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	case name == "curl":
		return "install curl (apt install curl / brew install curl)"
	case name == "oha":
		return "install oha (cargo install oha)"
	case name == "nginx":
		return "install nginx or pass -nginx /path/to/nginx"
	case strings.HasPrefix(name, "executable:"):
		return "build the variants (cargo build --release) or pass -bin-dir"
	case strings.HasPrefix(name, "port_"):
		return "stop whatever listens on the port, or pass -origin-port/-proxy-port"
	default:
		return "see documentation"
	}
}
