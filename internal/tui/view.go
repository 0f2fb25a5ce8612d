package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/http-bench-driver/internal/stats"
)

// recentRuns is how many completed runs the compact view lists.
const recentRuns = 5

// =============================================================================
// Main View Rendering
// =============================================================================

// renderDashboard renders the batch dashboard.
func (m Model) renderDashboard() string {
	sections := []string{
		m.renderHeader(),
		m.renderProgress(),
	}

	if m.current.variant != "" {
		sections = append(sections, m.renderCurrentRun())
	}
	if len(m.completed) > 0 {
		sections = append(sections, m.renderCompleted())
	}

	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	header := fmt.Sprintf(
		" http-bench-driver │ Runs: %d/%d │ Elapsed: %s ",
		m.Completed(),
		m.batchSize,
		stats.FormatDuration(m.Elapsed()),
	)

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Progress Section
// =============================================================================

func (m Model) renderProgress() string {
	barWidth := m.width - 30
	if barWidth < 20 {
		barWidth = 20
	}
	progressBar := RenderProgressBar(m.Progress(), barWidth)

	var status string
	switch {
	case m.done && m.batchErr != nil:
		status = statusError.Render("✗ Batch aborted: " + m.batchErr.Error())
	case m.done:
		status = statusOK.Render("✓ Batch complete")
	case m.Failed() > 0:
		status = statusWarning.Render(fmt.Sprintf("Running... %d failed", m.Failed()))
	default:
		status = statusInfo.Render(fmt.Sprintf("Running... %d/%d", m.Completed(), m.batchSize))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Batch Progress"),
		progressBar,
		status,
	)

	return boxStyle.Width(m.width - 2).Render(content)
}

// =============================================================================
// Current Run
// =============================================================================

func (m Model) renderCurrentRun() string {
	cur := m.current

	phase := cur.phase
	if phase == "" {
		phase = "starting"
	}
	inPhase := m.now.Sub(cur.phaseStarted)
	if inPhase < 0 {
		inPhase = 0
	}

	lines := []string{
		sectionHeaderStyle.Render("Current Run"),
		RenderKeyValue("Variant", cur.variant+" ("+cur.role+")"),
		RenderKeyValue("Target", cur.target),
		lipgloss.JoinHorizontal(lipgloss.Left,
			labelStyle.Render("Phase:"),
			GetPhaseStyle(cur.phase).Render(phase),
			dimStyle.Render(" "+stats.FormatSeconds(inPhase.Truncate(100*time.Millisecond))),
		),
	}

	for _, s := range cur.steps {
		lines = append(lines, renderStep(s))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderStep(s stepResult) string {
	if !s.tool {
		return mutedStyle.Render(fmt.Sprintf("  %-20s %10s", s.name, stats.FormatSeconds(s.duration)))
	}
	marker := statusOK.Render("✓")
	if s.exitCode != 0 {
		marker = statusError.Render(fmt.Sprintf("✗ exit %d", s.exitCode))
	}
	return mutedStyle.Render(fmt.Sprintf("  %-20s ", s.name)) + marker
}

// =============================================================================
// Completed Runs
// =============================================================================

func (m Model) renderCompleted() string {
	runs := m.completed
	title := "Completed Runs"
	if !m.detailedView && len(runs) > recentRuns {
		runs = runs[len(runs)-recentRuns:]
		title = fmt.Sprintf("Completed Runs (last %d of %d)", recentRuns, len(m.completed))
	}

	lines := []string{
		sectionHeaderStyle.Render(title),
		tableHeaderStyle.Render(fmt.Sprintf("%-24s %-7s %10s  %s", "Variant", "Role", "Wall", "Result")),
	}
	for i, r := range runs {
		style := tableRowEvenStyle
		if i%2 == 1 {
			style = tableRowOddStyle
		}
		row := style.Render(fmt.Sprintf("%-24s %-7s %10s  ", r.Variant, r.Role, stats.FormatSeconds(r.Duration)))
		lines = append(lines, row+GetResultLabel(r.Succeeded, r.ToolFailures))
	}

	return boxStyle.Width(m.width - 2).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	shortcuts := []string{
		"q: quit",
		"d: toggle all runs",
	}

	right := "Results: " + m.resultsDir
	if m.metricsAddr != "" {
		right += " │ Metrics: " + m.metricsAddr
	}

	left := dimStyle.Render(strings.Join(shortcuts, " │ "))
	rightRendered := boldStyle.Render(right)

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(rightRendered) - 2
	if padding < 1 {
		padding = 1
	}

	return footerStyle.Render(
		lipgloss.JoinHorizontal(lipgloss.Left,
			left,
			strings.Repeat(" ", padding),
			rightRendered,
		),
	)
}
