// Package main provides the http-bench-driver CLI entry point.
//
// http-bench-driver benchmarks a batch of HTTP server and proxy variants:
// each is started, warmed up, probed with curl, load-tested with oha and
// stopped again, and its output is archived under results/<variant>/.
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/http-bench-driver/internal/config"
	"github.com/randomizedcoder/http-bench-driver/internal/logging"
	"github.com/randomizedcoder/http-bench-driver/internal/orchestrator"
	"github.com/randomizedcoder/http-bench-driver/internal/tui"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/http-bench-driver
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// Handle version flag early (before flag parsing)
	if len(os.Args) > 1 {
		arg := os.Args[1]
		if arg == "-version" || arg == "--version" || arg == "version" {
			fmt.Printf("http-bench-driver %s\n", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 1
	}

	// Logs would tear the dashboard, so they are dropped while it runs
	logOpts := logging.Options{Format: cfg.LogFormat, Level: cfg.LogLevel, Verbose: cfg.Verbose}
	if cfg.TUIEnabled && !cfg.PrintCmd {
		logOpts.Output = io.Discard
	}
	logger := logging.New(logOpts)
	slog.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	batch, err := loadBatch(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Batch error: %v\n", err)
		return 1
	}

	var program *tea.Program
	var preflightOut bytes.Buffer
	opts := orchestrator.Options{Version: version}
	if cfg.TUIEnabled && !cfg.PrintCmd {
		// Preflight output is shown once the dashboard has closed
		opts.Stdout = &preflightOut
		program = tea.NewProgram(tui.New(tui.Config{
			BatchSize:   batch.Len(),
			ResultsDir:  cfg.ResultsDir,
			MetricsAddr: cfg.MetricsAddr,
		}), tea.WithAltScreen())
		opts.UI = program
	}

	orch, err := orchestrator.New(cfg, batch, logger, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if cfg.PrintCmd {
		orch.PrintCommands(os.Stdout)
		return 0
	}

	logger.Info("starting",
		"version", version,
		"runs", orch.Plan().Len(),
		"results", cfg.ResultsDir,
		"concurrency", cfg.Concurrency,
		"duration", cfg.LoadDuration.String(),
		"metrics_addr", cfg.MetricsAddr,
	)

	if program == nil {
		printBanner(cfg, orch.Plan().Len())
		err = orch.Run(context.Background())
	} else {
		err = runWithTUI(orch, program)
		os.Stdout.Write(preflightOut.Bytes())
	}

	fmt.Print(orch.Summary())

	if err != nil {
		if errors.Is(err, orchestrator.ErrPreflight) {
			fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}
	return 0
}

// loadBatch reads the batch file, or the compiled-in batch, and applies --only.
func loadBatch(cfg *config.Config) (*config.Batch, error) {
	batch := config.DefaultBatch()
	if cfg.BatchFile != "" {
		var err error
		if batch, err = config.LoadBatch(cfg.BatchFile); err != nil {
			return nil, err
		}
	}
	return batch.Filter(cfg.Only)
}

// runWithTUI runs the batch behind the dashboard. Quitting the dashboard
// cancels the batch; the batch ending closes the dashboard.
func runWithTUI(orch *orchestrator.Orchestrator, program *tea.Program) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- orch.Run(ctx)
		tui.SendQuit(program)
	}()

	if _, err := program.Run(); err != nil {
		cancel()
		return errors.Join(fmt.Errorf("tui: %w", err), <-done)
	}
	cancel()
	return <-done
}

// printBanner prints the startup banner.
func printBanner(cfg *config.Config, runs int) {
	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Println("║                       http-bench-driver                           ║")
	fmt.Println("║        HTTP Server and Proxy Benchmark Orchestration              ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Runs:        %d\n", runs)
	fmt.Printf("  Load:        oha -c %d -z %s\n", cfg.Concurrency, cfg.LoadDuration)
	fmt.Printf("  Ports:       origin %d, proxy %d\n", cfg.OriginPort, cfg.ProxyPort)
	fmt.Printf("  Results:     %s\n", cfg.ResultsDir)
	if cfg.MetricsAddr != "" {
		fmt.Printf("  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")
	fmt.Println()
}
