// Copyright 2026 The KQF Authors
// SPDX-License-Identifier: GPL-3.0-only

package cli

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// NewLogger creates the structured logger for CLI command operations
// from the global --log-level and --log-format flags. When the format
// is unset, stderr being a terminal selects slog.TextHandler for
// human-readable output; a piped or redirected stderr (scripts, cron,
// moonraker) selects slog.JSONHandler for machine-parseable output.
func NewLogger(level, format string) (*slog.Logger, error) {
	var slogLevel slog.Level
	switch level {
	case "", "info":
		slogLevel = slog.LevelInfo
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q (use debug, info, warn, or error)", level)
	}

	options := &slog.HandlerOptions{Level: slogLevel}
	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, options)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, options)
	case "":
		if term.IsTerminal(int(os.Stderr.Fd())) {
			handler = slog.NewTextHandler(os.Stderr, options)
		} else {
			handler = slog.NewJSONHandler(os.Stderr, options)
		}
	default:
		return nil, fmt.Errorf("unknown log format %q (use text or json)", format)
	}

	return slog.New(handler), nil
}
