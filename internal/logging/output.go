package logging

import (
	"bytes"
	"context"
	"log/slog"
	"maps"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single log line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the maximum number of lines kept per target.
	MaxBufferedLines = 100
)

// OutputHandler handles the stderr stream of a target under test.
// It keeps recent lines for failure reports and logs the interesting ones.
//
// OutputHandler implements io.Writer so it can be assigned to exec.Cmd.Stderr
// directly; partial lines are held until their newline arrives.
type OutputHandler struct {
	target  string
	logger  *slog.Logger
	verbose bool

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
	mu     sync.Mutex

	partial []byte

	// errors counts ErrorPatterns over every line seen, not just the buffer
	errors map[string]int
}

// NewOutputHandler creates a new output handler for the named target.
func NewOutputHandler(target string, logger *slog.Logger, verbose bool) *OutputHandler {
	return &OutputHandler{
		target:  target,
		logger:  logger,
		verbose: verbose,
		buffer:  make([]string, MaxBufferedLines),
		errors:  make(map[string]int),
	}
}

// Write splits p into lines and handles each complete line.
func (h *OutputHandler) Write(p []byte) (int, error) {
	h.mu.Lock()
	h.partial = append(h.partial, p...)
	var lines []string
	for {
		i := bytes.IndexByte(h.partial, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, strings.TrimRight(string(h.partial[:i]), "\r"))
		h.partial = h.partial[i+1:]
	}
	if len(h.partial) > MaxLineLength {
		lines = append(lines, string(h.partial))
		h.partial = h.partial[:0]
	}
	h.mu.Unlock()

	for _, line := range lines {
		h.HandleLine(line)
	}
	return len(p), nil
}

// Flush handles any trailing partial line. Call after the process has exited.
func (h *OutputHandler) Flush() {
	h.mu.Lock()
	rest := string(h.partial)
	h.partial = nil
	h.mu.Unlock()

	if rest != "" {
		h.HandleLine(rest)
	}
}

// HandleLine processes a single line of target output.
func (h *OutputHandler) HandleLine(line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	for _, pattern := range ErrorPatterns {
		if strings.Contains(line, pattern) {
			h.errors[pattern]++
		}
	}
	h.mu.Unlock()

	h.logLine(line)
}

// logLine logs the line at appropriate level based on content.
func (h *OutputHandler) logLine(line string) {
	if h.logger == nil {
		return
	}

	level := h.classifyLine(line)
	if !h.verbose && level == slog.LevelDebug {
		return
	}

	h.logger.Log(context.Background(), level, "target_stderr",
		"target", h.target,
		"line", line,
	)
}

// classifyLine determines the log level for a line based on content.
func (h *OutputHandler) classifyLine(line string) slog.Level {
	lower := strings.ToLower(line)

	if strings.Contains(lower, "address already in use") ||
		strings.Contains(lower, "panic") ||
		strings.Contains(lower, "[emerg]") ||
		strings.Contains(lower, "segmentation fault") {
		return slog.LevelError
	}

	if strings.Contains(lower, "error") ||
		strings.Contains(lower, "[warn]") ||
		strings.Contains(lower, "warning") ||
		strings.Contains(lower, "connection refused") ||
		strings.Contains(lower, "connection reset") {
		return slog.LevelWarn
	}

	return slog.LevelDebug
}

// RecentLines returns up to n of the most recent lines, oldest first.
func (h *OutputHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}

	lines := make([]string, 0, n)
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if h.buffer[idx] != "" {
			lines = append(lines, h.buffer[idx])
		}
	}

	return lines
}

// ErrorPatterns are common failure patterns counted for the run summary.
var ErrorPatterns = []string{
	"Address already in use",
	"Connection refused",
	"Connection reset",
	"panicked",
	"[emerg]",
	"[error]",
}

// CountErrors returns how often each error pattern appeared on stderr.
func (h *OutputHandler) CountErrors() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return maps.Clone(h.errors)
}
