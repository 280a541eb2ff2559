// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestTable_Render(t *testing.T) {
	table := &Table{Headers: []string{"ID", "NAME", "ACTION"}}
	table.AddRow("a1", "allow reads", "allow")
	table.AddRow("b22", "deny", "deny")

	var output bytes.Buffer
	if err := table.Render(&output); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	want := "" +
		"ID   NAME         ACTION\n" +
		"a1   allow reads  allow\n" +
		"b22  deny         deny\n"
	if output.String() != want {
		t.Errorf("Render() =\n%q\nwant\n%q", output.String(), want)
	}
}

func TestTable_RenderTruncates(t *testing.T) {
	table := &Table{Headers: []string{"PARAMS", "OK"}, MaxWidths: []int{8}}
	table.AddRow(`{"path":"/very/long/path"}`, "yes")

	var output bytes.Buffer
	if err := table.Render(&output); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	lines := strings.Split(strings.TrimRight(output.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), output.String())
	}
	if !strings.HasPrefix(lines[1], `{"path"…`) {
		t.Errorf("row = %q, want the params cell cut to 8 columns with an ellipsis", lines[1])
	}
	if !strings.HasSuffix(lines[1], "  yes") {
		t.Errorf("row = %q, want the next column after the separator", lines[1])
	}
}

func TestTable_RowsShorterThanHeaders(t *testing.T) {
	table := &Table{Headers: []string{"A", "B"}}
	table.AddRow("x")

	var output bytes.Buffer
	if err := table.Render(&output); err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if output.String() != "A  B\nx\n" {
		t.Errorf("Render() = %q", output.String())
	}
}

func TestWriteJSON_NilSlice(t *testing.T) {
	var output bytes.Buffer
	var entries []string
	if err := WriteJSON(&output, entries); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}
	if strings.TrimSpace(output.String()) != "[]" {
		t.Errorf("WriteJSON(nil slice) = %q, want []", output.String())
	}
}

func TestDecodeValue(t *testing.T) {
	value := []any{map[string]any{"id": "r1", "priority": uint64(7)}}
	var decoded []struct {
		ID       string `json:"id"`
		Priority int    `json:"priority"`
	}
	if err := DecodeValue(value, &decoded); err != nil {
		t.Fatalf("DecodeValue() error: %v", err)
	}
	if len(decoded) != 1 || decoded[0].ID != "r1" || decoded[0].Priority != 7 {
		t.Errorf("decoded = %+v", decoded)
	}
}
