package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/http-bench-driver/internal/stats"
)

// update applies msgs in order and returns the resulting model.
func update(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		var ok bool
		m, ok = next.(Model)
		if !ok {
			t.Fatalf("Update(%T) returned %T", msg, next)
		}
	}
	return m
}

func TestNew(t *testing.T) {
	model := New(Config{BatchSize: 7, ResultsDir: "results", MetricsAddr: "localhost:9090"})

	if model.batchSize != 7 || model.resultsDir != "results" || model.metricsAddr != "localhost:9090" {
		t.Errorf("model = %+v", model)
	}
	if model.width != 80 || model.height != 24 {
		t.Errorf("size = %dx%d, want 80x24", model.width, model.height)
	}
	if model.Progress() != 0 || model.CurrentVariant() != "" {
		t.Error("new model should be idle")
	}
}

func TestModel_Init(t *testing.T) {
	if cmd := New(Config{}).Init(); cmd == nil {
		t.Error("Init() should schedule a tick")
	}
}

func TestModel_RunLifecycle(t *testing.T) {
	m := update(t, New(Config{BatchSize: 2}),
		RunStartedMsg{Variant: "origin-hyper", Role: "origin", Target: "http://localhost:3000"},
		PhaseMsg{Variant: "origin-hyper", Phase: "spawned"},
		PhaseMsg{Variant: "origin-hyper", Phase: "warming_up"},
		StepMsg{Variant: "origin-hyper", Step: "warmup", Duration: 2 * time.Second},
		ToolMsg{Variant: "origin-hyper", Step: "probe", ExitCode: 0},
		ToolMsg{Variant: "origin-hyper", Step: "load_no_keepalive", ExitCode: 3},
		PhaseMsg{Variant: "origin-hyper", Phase: "load_testing_1"},
	)

	if m.CurrentVariant() != "origin-hyper" || m.CurrentPhase() != "load_testing_1" {
		t.Fatalf("current = %q/%q", m.CurrentVariant(), m.CurrentPhase())
	}
	if len(m.current.steps) != 3 {
		t.Errorf("steps = %d, want 3", len(m.current.steps))
	}

	view := m.View()
	for _, want := range []string{"Current Run", "origin-hyper", "load_testing_1", "warmup", "✗ exit 3", "Runs: 0/2"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}

	m = update(t, m, RunFinishedMsg{Record: stats.RunRecord{
		Variant: "origin-hyper", Role: "origin", Succeeded: true, Duration: 35 * time.Second, ToolFailures: 1,
	}})

	if m.CurrentVariant() != "" {
		t.Error("current run not cleared on finish")
	}
	if m.Completed() != 1 || m.Progress() != 0.5 {
		t.Errorf("completed = %d progress = %v", m.Completed(), m.Progress())
	}
	if view := m.View(); !strings.Contains(view, "Completed Runs") || !strings.Contains(view, "⚠ 1 tool") {
		t.Errorf("View() after finish:\n%s", view)
	}
}

func TestModel_IgnoresOtherVariants(t *testing.T) {
	m := update(t, New(Config{BatchSize: 1}),
		RunStartedMsg{Variant: "proxy-hyper", Role: "proxy"},
		PhaseMsg{Variant: "origin-hyper", Phase: "spawned"},
		StepMsg{Variant: "origin-hyper", Step: "warmup"},
	)
	if m.CurrentPhase() != "" || len(m.current.steps) != 0 {
		t.Errorf("stray messages applied: %+v", m.current)
	}
}

func TestModel_UpdateDoesNotShareSteps(t *testing.T) {
	base := update(t, New(Config{}),
		RunStartedMsg{Variant: "origin-hyper"},
		StepMsg{Variant: "origin-hyper", Step: "warmup"},
	)
	a := update(t, base, StepMsg{Variant: "origin-hyper", Step: "probe"})
	b := update(t, base, StepMsg{Variant: "origin-hyper", Step: "settle"})

	if a.current.steps[1].name != "probe" || b.current.steps[1].name != "settle" {
		t.Errorf("steps aliased: a=%v b=%v", a.current.steps, b.current.steps)
	}
	if len(base.current.steps) != 1 {
		t.Errorf("base mutated: %v", base.current.steps)
	}
}

func TestModel_BatchDone(t *testing.T) {
	m := update(t, New(Config{BatchSize: 3}),
		RunStartedMsg{Variant: "origin-actix"},
		RunFinishedMsg{Record: stats.RunRecord{Variant: "origin-actix", Succeeded: false}},
		BatchDoneMsg{Err: errors.New("run origin-actix: spawn failed")},
	)

	if !m.Done() || m.Failed() != 1 {
		t.Errorf("done=%v failed=%d", m.Done(), m.Failed())
	}
	view := m.View()
	if !strings.Contains(view, "Batch aborted") || !strings.Contains(view, "✗ failed") {
		t.Errorf("View():\n%s", view)
	}

	ok := update(t, New(Config{BatchSize: 1}), BatchDoneMsg{})
	if !strings.Contains(ok.View(), "Batch complete") {
		t.Error("successful batch not reported complete")
	}
}

func TestModel_DetailedView(t *testing.T) {
	m := New(Config{BatchSize: 8, ResultsDir: "results"})
	for _, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		m = update(t, m, RunFinishedMsg{Record: stats.RunRecord{Variant: "origin-" + name, Succeeded: true}})
	}

	compact := m.View()
	if strings.Contains(compact, "origin-a ") || !strings.Contains(compact, "last 5 of 7") {
		t.Errorf("compact view should list the last five runs:\n%s", compact)
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'d'}})
	if !m.detailedView {
		t.Fatal("'d' did not toggle the detailed view")
	}
	if !strings.Contains(m.View(), "origin-a ") {
		t.Error("detailed view should list every run")
	}
}

func TestModel_Keys(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyRunes, Runes: []rune{'q'}},
		{Type: tea.KeyEsc},
		{Type: tea.KeyCtrlC},
	} {
		next, cmd := New(Config{}).Update(key)
		if cmd == nil {
			t.Errorf("%s: no quit command", key)
		}
		if next.(Model).View() != "" {
			t.Errorf("%s: quitting model should render nothing", key)
		}
	}
}

func TestModel_WindowAndTick(t *testing.T) {
	m := New(Config{})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	m = next.(Model)
	if m.width != 120 || m.height != 40 {
		t.Errorf("size = %dx%d", m.width, m.height)
	}

	now := m.startTime.Add(95 * time.Second)
	next, cmd := m.Update(TickMsg(now))
	m = next.(Model)
	if cmd == nil {
		t.Error("tick should schedule another tick")
	}
	if m.Elapsed() != 95*time.Second {
		t.Errorf("Elapsed() = %v", m.Elapsed())
	}
	if !strings.Contains(m.View(), "00:01:35") {
		t.Error("header should show elapsed time")
	}
}

func TestModel_QuitMsg(t *testing.T) {
	next, cmd := New(Config{}).Update(QuitMsg{})
	if cmd == nil || !next.(Model).quitting {
		t.Error("QuitMsg should quit")
	}
	SendQuit(nil)
}
