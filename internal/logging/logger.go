// Package logging provides structured logging for http-bench-driver and
// line handling for the output of targets under test.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects the driver log's format, level and destination.
type Options struct {
	Format string // "json" or "text"; anything else is JSON
	Level  string // debug, info, warn or error; anything else is info

	// Verbose forces debug level and adds source locations.
	Verbose bool

	// Output defaults to os.Stderr. The dashboard passes io.Discard.
	Output io.Writer
}

// New creates the driver's logger.
func New(opts Options) *slog.Logger {
	level := parseLevel(opts.Level)
	if opts.Verbose {
		level = slog.LevelDebug
	}
	w := opts.Output
	if w == nil {
		w = os.Stderr
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: opts.Verbose,
	}
	if strings.EqualFold(opts.Format, "text") {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
