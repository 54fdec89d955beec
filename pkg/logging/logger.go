package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with application-specific functionality
type Logger struct {
	*slog.Logger
}

// New creates a JSON logger on stdout with the specified level
func New(level string) *Logger {
	return NewWithWriter(level, os.Stdout)
}

// NewWithWriter creates a JSON logger that writes to w. Tests use it to
// capture output.
func NewWithWriter(level string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	return &Logger{Logger: slog.New(handler)}
}

// Default returns a logger with default settings
func Default() *Logger {
	return New("info")
}

// With returns a child logger carrying the given attributes.
func (l *Logger) With(args ...any) *Logger {
	if l == nil || l.Logger == nil {
		return Default().With(args...)
	}
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component tags every record with the emitting component name.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
