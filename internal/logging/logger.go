// Package logging builds the structured loggers used across the engine and
// CLI. Console output is human-oriented text; the project log file under
// .adforge/logs keeps a JSON trail users can inspect after a run ends.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// New returns a text logger writing to w at the given level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewJSON returns a JSON logger writing to w.
func NewJSON(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, nil))
}

// FileLogger opens (or creates) the project log file and returns a JSON
// logger appending to it plus a closer for the underlying handle.
func FileLogger(projectDir string) (*slog.Logger, func() error, error) {
	logDir := filepath.Join(projectDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, "adforge.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: open log file: %w", err)
	}
	return NewJSON(f), f.Close, nil
}
