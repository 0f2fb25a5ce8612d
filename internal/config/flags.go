package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// stringList is a custom flag type for repeatable, comma-separable flags.
type stringList []string

func (s *stringList) String() string {
	return strings.Join(*s, ",")
}

func (s *stringList) Set(value string) error {
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*s = append(*s, v)
		}
	}
	return nil
}

// ParseFlags parses the process command line and returns a Config.
func ParseFlags() (*Config, error) {
	return ParseArgs(os.Args[1:], os.Stderr)
}

// ParseArgs parses args and returns a Config. Usage and parse errors are
// written to output.
func ParseArgs(args []string, output io.Writer) (*Config, error) {
	cfg := DefaultConfig()
	var only stringList

	fs := flag.NewFlagSet("http-bench-driver", flag.ContinueOnError)
	fs.SetOutput(output)

	// Custom usage message
	fs.Usage = func() {
		fmt.Fprintf(output, `http-bench-driver - sequential HTTP server and proxy benchmarks

Usage:
  http-bench-driver [flags]

Batch Flags:
`)
		printFlagCategory(fs, output, []string{"batch", "only", "results", "bin-dir"})

		fmt.Fprintf(output, "\nPorts:\n")
		printFlagCategory(fs, output, []string{"origin-port", "proxy-port"})

		fmt.Fprintf(output, "\nTools:\n")
		printFlagCategory(fs, output, []string{"curl", "oha", "nginx", "shell"})

		fmt.Fprintf(output, "\nLoad Test:\n")
		printFlagCategory(fs, output, []string{"concurrency", "load-duration", "latency-correction", "phases"})

		fmt.Fprintf(output, "\nReadiness:\n")
		printFlagCategory(fs, output, []string{"readiness", "warmup", "settle", "ready-timeout"})

		fmt.Fprintf(output, "\nFailure Handling:\n")
		printFlagCategory(fs, output, []string{"tool-failure-policy", "terminate-timeout"})

		fmt.Fprintf(output, "\nSafety & Diagnostics:\n")
		printFlagCategory(fs, output, []string{"print-cmd", "skip-preflight"})

		fmt.Fprintf(output, "\nObservability:\n")
		printFlagCategory(fs, output, []string{"metrics", "tui", "v", "log-format"})

		fmt.Fprintf(output, `
Flag Convention:
  Single-dash flags (-batch, -phases) are normal options.
  Double-dash flags (--print-cmd, --skip-preflight) are diagnostic modes.

Examples:
  # Compiled-in batch, binaries from target/release
  http-bench-driver

  # Two variants only, shorter load phases
  http-bench-driver -only origin-hyper,proxy-hyper -load-duration 5s

  # Custom batch with live dashboard and metrics
  http-bench-driver -batch batch.yaml -tui -metrics 127.0.0.1:17091

`)
	}

	// Batch
	fs.StringVar(&cfg.BatchFile, "batch", cfg.BatchFile, "YAML batch file (default: compiled-in batch)")
	fs.Var(&only, "only", "Run only these variants (comma-separated, can repeat)")
	fs.StringVar(&cfg.ResultsDir, "results", cfg.ResultsDir, "Results root directory")
	fs.StringVar(&cfg.BinDir, "bin-dir", cfg.BinDir, "Directory holding the variant binaries")

	// Ports
	fs.IntVar(&cfg.OriginPort, "origin-port", cfg.OriginPort, "Port origins listen on")
	fs.IntVar(&cfg.ProxyPort, "proxy-port", cfg.ProxyPort, "Port proxies listen on")

	// Tools
	fs.StringVar(&cfg.CurlPath, "curl", cfg.CurlPath, "Path to curl")
	fs.StringVar(&cfg.OhaPath, "oha", cfg.OhaPath, "Path to oha")
	fs.StringVar(&cfg.NginxPath, "nginx", cfg.NginxPath, "Path to nginx (daemon variants)")
	fs.StringVar(&cfg.ShellPath, "shell", cfg.ShellPath, "Shell for shell-wrapped variants")

	// Load test
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Load generator connections")
	fs.DurationVar(&cfg.LoadDuration, "load-duration", cfg.LoadDuration, "Duration of each load phase")
	fs.BoolVar(&cfg.LatencyCorrection, "latency-correction", cfg.LatencyCorrection, "Pass --latency-correction to oha")
	fs.StringVar(&cfg.Phases, "phases", cfg.Phases, `Load phases: "both" or "no-keepalive"`)

	// Readiness
	fs.StringVar(&cfg.Readiness, "readiness", cfg.Readiness, `Warm-up mode: "poll" or "sleep"`)
	fs.DurationVar(&cfg.Warmup, "warmup", cfg.Warmup, "Fixed warm-up delay (sleep mode)")
	fs.DurationVar(&cfg.Settle, "settle", cfg.Settle, "Delay between probe and first load phase")
	fs.DurationVar(&cfg.ReadyTimeout, "ready-timeout", cfg.ReadyTimeout, "Readiness poll bound (poll mode)")

	// Failure handling
	fs.StringVar(&cfg.ToolFailurePolicy, "tool-failure-policy", cfg.ToolFailurePolicy, `Non-zero tool exit: "record" or "fail"`)
	fs.DurationVar(&cfg.TerminateTimeout, "terminate-timeout", cfg.TerminateTimeout, "Wait for exit before SIGKILL")

	// Safety & Diagnostics (double-dash convention)
	fs.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print every command the batch would run and exit")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "Skip preflight checks")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address (empty = disabled)")
	fs.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Enable live terminal dashboard")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose logging")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json" or "text"`)
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, `Log level: "debug", "info", "warn" or "error" (-v forces debug)`)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	cfg.Only = only
	return cfg, nil
}

// printFlagCategory prints flags matching the given names (helper for usage).
func printFlagCategory(fs *flag.FlagSet, w io.Writer, names []string) {
	fs.VisitAll(func(f *flag.Flag) {
		for _, name := range names {
			if f.Name == name {
				fmt.Fprintf(w, "  -%s %s\n    \t%s", f.Name, flagType(f), f.Usage)
				if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" && f.DefValue != "0s" {
					fmt.Fprintf(w, " (default %s)", f.DefValue)
				}
				fmt.Fprintln(w)
				return
			}
		}
	})
}

// flagType returns a type hint for the flag value.
func flagType(f *flag.Flag) string {
	switch f.DefValue {
	case "true", "false":
		return ""
	}

	if _, err := strconv.Atoi(f.DefValue); err == nil {
		return "int"
	}

	if _, err := time.ParseDuration(f.DefValue); err == nil {
		return "duration"
	}

	return "string"
}
