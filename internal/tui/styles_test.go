package tui

import (
	"strings"
	"testing"
)

func TestGetResultLabel(t *testing.T) {
	tests := []struct {
		name         string
		succeeded    bool
		toolFailures int
		want         string
	}{
		{"ok", true, 0, "✓ ok"},
		{"tool failures", true, 2, "⚠ 2 tool"},
		{"failed", false, 0, "✗ failed"},
		{"failed wins", false, 3, "✗ failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetResultLabel(tt.succeeded, tt.toolFailures); !strings.Contains(got, tt.want) {
				t.Errorf("GetResultLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetPhaseStyle(t *testing.T) {
	if GetPhaseStyle("load_testing_1").GetForeground() != colorWarning {
		t.Error("load phase should use the warning color")
	}
	if GetPhaseStyle("collected").GetForeground() != colorSuccess {
		t.Error("collected should use the success color")
	}
	if GetPhaseStyle("warming_up").GetForeground() != colorInfo {
		t.Error("warming_up should use the info color")
	}
}

func TestRenderKeyValue(t *testing.T) {
	result := RenderKeyValue("Variant", "origin-hyper")
	if !strings.Contains(result, "Variant:") || !strings.Contains(result, "origin-hyper") {
		t.Errorf("RenderKeyValue() = %q", result)
	}
}

func TestRenderProgressBar(t *testing.T) {
	tests := []struct {
		name     string
		progress float64
		width    int
	}{
		{"0%", 0, 20},
		{"50%", 0.5, 20},
		{"100%", 1.0, 20},
		{"narrow", 0.5, 5},
		{"over 100%", 1.5, 20},
		{"negative", -0.1, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RenderProgressBar(tt.progress, tt.width)
			if !strings.Contains(result, "%") {
				t.Errorf("RenderProgressBar() = %q, want a percentage", result)
			}
		})
	}
}

func TestRepeatChar(t *testing.T) {
	tests := []struct {
		char  rune
		count int
		want  string
	}{
		{'x', 0, ""},
		{'x', 1, "x"},
		{'█', 3, "███"},
		{'x', -1, ""},
	}

	for _, tt := range tests {
		if got := repeatChar(tt.char, tt.count); got != tt.want {
			t.Errorf("repeatChar(%q, %d) = %q, want %q", tt.char, tt.count, got, tt.want)
		}
	}
}
