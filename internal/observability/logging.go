// Package observability wires slog, the audit/security event logs, and the
// prometheus counters shared across components.
package observability

import (
	"log/slog"
	"os"
	"strings"
)

// SetupLogging installs the process-wide slog default. Quiet mode raises
// the level to error regardless of the configured level.
func SetupLogging(level string, quiet bool) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if quiet {
		lvl = slog.LevelError
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
