// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package logging builds the process-wide slog logger.
//
// Output goes to a TextHandler when the writer is a terminal and to a
// JSONHandler otherwise, so interactive runs are readable and piped or
// supervised runs stay machine-parseable. An explicit format overrides
// the detection.
//
// Callers scope the logger with component context via With():
//
//	logger := logging.New(os.Stderr, "info", "auto").With("component", "router")
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Format names accepted by [New].
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

// New creates a logger writing to w at the named level ("debug",
// "info", "warn", "error") in the named format. Unknown levels and
// formats are reported by [Parse]; New falls back to info and auto.
func New(w io.Writer, level, format string) *slog.Logger {
	parsedLevel, parsedFormat, err := Parse(level, format)
	if err != nil {
		parsedLevel, parsedFormat = slog.LevelInfo, FormatAuto
	}
	return slog.New(handler(w, parsedLevel, parsedFormat))
}

// Parse validates a level and format pair.
func Parse(level, format string) (slog.Level, string, error) {
	var parsed slog.Level
	if level == "" {
		level = "info"
	}
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, "", fmt.Errorf("unknown log level %q", level)
	}
	switch format = strings.ToLower(format); format {
	case "":
		format = FormatAuto
	case FormatAuto, FormatText, FormatJSON:
	default:
		return parsed, "", fmt.Errorf("unknown log format %q (want auto, text, or json)", format)
	}
	return parsed, format, nil
}

func handler(w io.Writer, level slog.Level, format string) slog.Handler {
	options := &slog.HandlerOptions{Level: level}
	if format == FormatAuto {
		format = FormatJSON
		if isTerminal(w) {
			format = FormatText
		}
	}
	if format == FormatText {
		return slog.NewTextHandler(w, options)
	}
	return slog.NewJSONHandler(w, options)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	return ok && term.IsTerminal(int(file.Fd()))
}
