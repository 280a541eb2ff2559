// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_NonTerminalIsJSON(t *testing.T) {
	var buffer bytes.Buffer
	logger := New(&buffer, "info", FormatAuto)
	logger.Info("started", "request_id", "r-1")

	var record map[string]any
	if err := json.Unmarshal(buffer.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buffer.String())
	}
	if record["msg"] != "started" || record["request_id"] != "r-1" {
		t.Errorf("record = %v", record)
	}
}

func TestNew_ExplicitText(t *testing.T) {
	var buffer bytes.Buffer
	New(&buffer, "debug", FormatText).Debug("hello", "scope", "topic-1")

	output := buffer.String()
	if !strings.Contains(output, "msg=hello") || !strings.Contains(output, "scope=topic-1") {
		t.Errorf("unexpected text output %q", output)
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buffer bytes.Buffer
	logger := New(&buffer, "warn", FormatJSON)
	logger.Info("dropped")
	if buffer.Len() != 0 {
		t.Fatalf("info logged at warn level: %q", buffer.String())
	}
	logger.Warn("kept")
	if !strings.Contains(buffer.String(), "kept") {
		t.Errorf("warn not logged: %q", buffer.String())
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		level, format string
		wantLevel     slog.Level
		wantFormat    string
		wantErr       bool
	}{
		{"", "", slog.LevelInfo, FormatAuto, false},
		{"debug", "json", slog.LevelDebug, FormatJSON, false},
		{"WARN", "TEXT", slog.LevelWarn, FormatText, false},
		{"error", "auto", slog.LevelError, FormatAuto, false},
		{"verbose", "json", slog.LevelInfo, "", true},
		{"info", "xml", slog.LevelInfo, "", true},
	}
	for _, tt := range tests {
		level, format, err := Parse(tt.level, tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q, %q) error = %v, wantErr %v", tt.level, tt.format, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			continue
		}
		if level != tt.wantLevel || format != tt.wantFormat {
			t.Errorf("Parse(%q, %q) = %v, %q; want %v, %q", tt.level, tt.format, level, format, tt.wantLevel, tt.wantFormat)
		}
	}
}
