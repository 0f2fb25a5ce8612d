package process

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"time"

	"github.com/kballard/go-shellquote"
)

// ProbeConfig holds configuration for the HTTP probe tool.
type ProbeConfig struct {
	// BinaryPath is the path to curl.
	BinaryPath string
}

// DefaultProbeConfig returns a ProbeConfig with sensible defaults.
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{BinaryPath: "curl"}
}

// ProbeArgs returns the curl arguments that dump response headers and
// body of a single GET to stdout.
func (c ProbeConfig) ProbeArgs(url string) []string {
	return []string{"-sSD", "-", url}
}

// LoadConfig holds configuration for the load generator.
type LoadConfig struct {
	// BinaryPath is the path to oha.
	BinaryPath string

	// Concurrency is the number of concurrent connections.
	Concurrency int

	// Duration is how long the generator runs; it stops on its own.
	Duration time.Duration

	// LatencyCorrection corrects for coordinated omission.
	LatencyCorrection bool
}

// DefaultLoadConfig returns a LoadConfig with sensible defaults.
func DefaultLoadConfig() LoadConfig {
	return LoadConfig{
		BinaryPath:        "oha",
		Concurrency:       100,
		Duration:          15 * time.Second,
		LatencyCorrection: true,
	}
}

// LoadArgs returns the oha arguments for one load-test phase.
func (c LoadConfig) LoadArgs(url string, keepAlive bool) []string {
	args := []string{
		"--no-tui",
		"--json",
		"-c", strconv.Itoa(c.Concurrency),
		"-z", formatOhaDuration(c.Duration),
	}
	if c.LatencyCorrection {
		args = append(args, "--latency-correction")
	}
	if !keepAlive {
		args = append(args, "--disable-keepalive")
	}
	return append(args, url)
}

// formatOhaDuration renders d the way oha's -z flag expects ("15s", "500ms").
func formatOhaDuration(d time.Duration) string {
	if d%time.Second == 0 {
		return strconv.FormatInt(int64(d/time.Second), 10) + "s"
	}
	return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
}

// ToolResult captures one external tool invocation.
type ToolResult struct {
	Tool     string
	Args     []string
	Output   []byte // stdout, verbatim
	Stderr   []byte
	ExitCode int
	Duration time.Duration

	// Err is set when the tool could not be started or exited non-zero.
	Err error
}

// Started reports whether the tool ran at all. A tool that ran and
// exited non-zero still produced output worth keeping.
func (r ToolResult) Started() bool {
	if r.Err == nil {
		return true
	}
	var exitErr *exec.ExitError
	return errors.As(r.Err, &exitErr)
}

// CommandString returns the command line, for logs and --print-cmd.
func (r ToolResult) CommandString() string {
	return CommandString(r.Tool, r.Args)
}

// CommandString joins a binary and its arguments into a shell-quoted
// command line.
func CommandString(binary string, args []string) string {
	return shellquote.Join(append([]string{binary}, args...)...)
}

// RunTool runs binary to completion and captures its output.
// Cancelling ctx kills the tool.
func RunTool(ctx context.Context, binary string, args []string) ToolResult {
	cmd := exec.CommandContext(ctx, binary, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	return ToolResult{
		Tool:     binary,
		Args:     args,
		Output:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: extractExitCode(err),
		Duration: time.Since(start),
		Err:      err,
	}
}
