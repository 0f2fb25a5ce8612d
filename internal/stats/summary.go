package stats

import (
	"fmt"
	"strings"
	"time"
)

// RunRecord is the outcome of one run as shown in the exit summary.
type RunRecord struct {
	Variant      string
	Role         string
	Succeeded    bool
	Duration     time.Duration
	ToolFailures int
	StderrErrors int
	Error        string
}

// SummaryConfig holds configuration for summary formatting.
type SummaryConfig struct {
	// Duration is the total batch duration
	Duration time.Duration

	// Scheduled is the number of runs in the batch
	Scheduled int

	Runs   []RunRecord
	Phases []PhaseStat

	// ResultsDir is where artifacts were written
	ResultsDir string

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// Aborted is the error that stopped the batch, if any
	Aborted error
}

const (
	heavyRule = "═══════════════════════════════════════════════════════════════════════════════\n"
	lightRule = "───────────────────────────────────────────────────────────────────────────────\n"
)

// FormatExitSummary formats the batch outcome for display at program exit.
func FormatExitSummary(cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(heavyRule)
	b.WriteString("                         http-bench-driver Exit Summary\n")
	b.WriteString(heavyRule + "\n")

	succeeded := 0
	for _, r := range cfg.Runs {
		if r.Succeeded {
			succeeded++
		}
	}

	fmt.Fprintf(&b, "Batch Duration:         %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Runs:                   %d/%d succeeded", succeeded, cfg.Scheduled)
	if skipped := cfg.Scheduled - len(cfg.Runs); skipped > 0 {
		fmt.Fprintf(&b, " (%d not started)", skipped)
	}
	b.WriteString("\n")
	if cfg.ResultsDir != "" {
		fmt.Fprintf(&b, "Results:                %s\n", cfg.ResultsDir)
	}
	b.WriteString("\n")

	if len(cfg.Runs) > 0 {
		b.WriteString(lightRule)
		b.WriteString("                                    Runs\n")
		b.WriteString(lightRule + "\n")

		fmt.Fprintf(&b, "  %-24s %-7s %-8s %10s %6s %7s\n", "Variant", "Role", "Result", "Wall", "Tools", "Stderr")
		b.WriteString("  " + strings.Repeat("─", 67) + "\n")
		for _, r := range cfg.Runs {
			result := "ok"
			if !r.Succeeded {
				result = "FAILED"
			}
			tools := "-"
			if r.ToolFailures > 0 {
				tools = fmt.Sprintf("%d ✗", r.ToolFailures)
			}
			stderr := "-"
			if r.StderrErrors > 0 {
				stderr = fmt.Sprintf("%d err", r.StderrErrors)
			}
			fmt.Fprintf(&b, "  %-24s %-7s %-8s %10s %6s %7s\n",
				r.Variant, r.Role, result, FormatSeconds(r.Duration), tools, stderr)
		}
		b.WriteString("\n")
	}

	if len(cfg.Phases) > 0 {
		b.WriteString(lightRule)
		b.WriteString("                                Phase Timings\n")
		b.WriteString(lightRule + "\n")

		fmt.Fprintf(&b, "  %-20s %6s %10s %10s %10s\n", "Phase", "Count", "P50", "P95", "Max")
		b.WriteString("  " + strings.Repeat("─", 60) + "\n")
		for _, p := range cfg.Phases {
			fmt.Fprintf(&b, "  %-20s %6d %10s %10s %10s\n",
				p.Step, p.Count, FormatSeconds(p.P50), FormatSeconds(p.P95), FormatSeconds(p.Max))
		}
		b.WriteString("\n")
	}

	if cfg.Aborted != nil {
		b.WriteString("⚠️  BATCH ABORTED\n")
		fmt.Fprintf(&b, "    %v\n\n", cfg.Aborted)
	}
	for _, r := range cfg.Runs {
		if r.Error != "" {
			fmt.Fprintf(&b, "  %s: %s\n", r.Variant, r.Error)
		}
	}

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString(heavyRule)
	return b.String()
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatSeconds formats a duration as seconds with millisecond precision.
func FormatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3fs", d.Seconds())
}
