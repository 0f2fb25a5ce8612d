package tui

import (
	"slices"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/http-bench-driver/internal/stats"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// RunStartedMsg announces the run now in progress.
type RunStartedMsg struct {
	Variant string
	Role    string
	Target  string
}

// PhaseMsg carries a lifecycle phase transition of the current run.
type PhaseMsg struct {
	Variant string
	Phase   string
}

// StepMsg carries a finished timed step of the current run.
type StepMsg struct {
	Variant  string
	Step     string
	Duration time.Duration
}

// ToolMsg carries a probe or load-test result of the current run.
type ToolMsg struct {
	Variant  string
	Step     string
	ExitCode int
}

// RunFinishedMsg carries the outcome of a run.
type RunFinishedMsg struct {
	Record stats.RunRecord
}

// BatchDoneMsg marks the end of the batch.
type BatchDoneMsg struct {
	Err error
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// stepResult is one finished step of the current run.
type stepResult struct {
	name     string
	duration time.Duration
	exitCode int
	tool     bool
}

// currentRun is the run in progress.
type currentRun struct {
	variant      string
	role         string
	target       string
	phase        string
	phaseStarted time.Time
	steps        []stepResult
}

// Model represents the TUI state.
type Model struct {
	// Configuration
	batchSize   int
	resultsDir  string
	metricsAddr string

	// Current state; current.variant is empty between runs
	current   currentRun
	completed []stats.RunRecord
	startTime time.Time
	now       time.Time
	done      bool
	batchErr  error

	// Show every completed run instead of the most recent ones
	detailedView bool

	// Display options
	width  int
	height int

	quitting bool
}

// Config holds TUI configuration.
type Config struct {
	BatchSize   int
	ResultsDir  string
	MetricsAddr string
}

// New creates a new TUI model.
func New(cfg Config) Model {
	now := time.Now()
	return Model{
		batchSize:   cfg.BatchSize,
		resultsDir:  cfg.ResultsDir,
		metricsAddr: cfg.MetricsAddr,
		startTime:   now,
		now:         now,
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()

	case RunStartedMsg:
		m.current = currentRun{
			variant:      msg.Variant,
			role:         msg.Role,
			target:       msg.Target,
			phaseStarted: time.Now(),
		}
		return m, nil

	case PhaseMsg:
		if m.current.variant == msg.Variant {
			m.current.phase = msg.Phase
			m.current.phaseStarted = time.Now()
		}
		return m, nil

	case StepMsg:
		if m.current.variant == msg.Variant {
			m.current.steps = appendStep(m.current.steps, stepResult{
				name:     msg.Step,
				duration: msg.Duration,
			})
		}
		return m, nil

	case ToolMsg:
		if m.current.variant == msg.Variant {
			m.current.steps = appendStep(m.current.steps, stepResult{
				name:     msg.Step,
				exitCode: msg.ExitCode,
				tool:     true,
			})
		}
		return m, nil

	case RunFinishedMsg:
		m.completed = append(slices.Clip(m.completed), msg.Record)
		if m.current.variant == msg.Record.Variant {
			m.current = currentRun{}
		}
		return m, nil

	case BatchDoneMsg:
		m.done = true
		m.batchErr = msg.Err
		m.current = currentRun{}
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderDashboard()
}

// =============================================================================
// Commands
// =============================================================================

// appendStep appends without sharing the backing array with older models.
func appendStep(steps []stepResult, s stepResult) []stepResult {
	return append(slices.Clip(steps), s)
}

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the batch started.
func (m Model) Elapsed() time.Duration {
	return m.now.Sub(m.startTime)
}

// Completed returns the number of finished runs.
func (m Model) Completed() int {
	return len(m.completed)
}

// Failed returns the number of failed runs.
func (m Model) Failed() int {
	n := 0
	for _, r := range m.completed {
		if !r.Succeeded {
			n++
		}
	}
	return n
}

// Progress returns the batch progress (0.0 to 1.0).
func (m Model) Progress() float64 {
	if m.batchSize == 0 {
		return 0
	}
	return min(float64(len(m.completed))/float64(m.batchSize), 1)
}

// CurrentVariant returns the variant in progress, or "".
func (m Model) CurrentVariant() string {
	return m.current.variant
}

// CurrentPhase returns the phase of the run in progress, or "".
func (m Model) CurrentPhase() string {
	return m.current.phase
}

// Done reports whether the batch has finished.
func (m Model) Done() bool {
	return m.done
}

// =============================================================================
// Helper for external use
// =============================================================================

// Sender delivers messages to a running program; *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}
