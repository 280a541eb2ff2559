// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package toolmap translates tool names used by tool-protocol clients
// into the (operation, method) pairs of the operation registry.
package toolmap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bureau-foundation/warden/lib/operation"
)

// Entry is one tool.
type Entry struct {
	Tool        string `json:"tool" yaml:"tool"`
	Operation   string `json:"operation" yaml:"operation"`
	Method      string `json:"method" yaml:"method"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

type target struct {
	operation string
	method    string
}

// Table is an immutable two-way tool lookup.
type Table struct {
	byTool   map[string]Entry
	byTarget map[target]string
}

// New builds a table. Tool names and targets must both be unique.
func New(entries []Entry) (*Table, error) {
	table := &Table{
		byTool:   make(map[string]Entry, len(entries)),
		byTarget: make(map[target]string, len(entries)),
	}
	for _, entry := range entries {
		if err := ValidateName(entry.Tool); err != nil {
			return nil, err
		}
		if entry.Operation == "" || entry.Method == "" {
			return nil, fmt.Errorf("tool %q: operation and method are required", entry.Tool)
		}
		if _, exists := table.byTool[entry.Tool]; exists {
			return nil, fmt.Errorf("duplicate tool %q", entry.Tool)
		}
		key := target{entry.Operation, entry.Method}
		if other, exists := table.byTarget[key]; exists {
			return nil, fmt.Errorf("tools %q and %q both map to %s.%s", other, entry.Tool, entry.Operation, entry.Method)
		}
		table.byTool[entry.Tool] = entry
		table.byTarget[key] = entry.Tool
	}
	return table, nil
}

// FromMethods builds a table naming every registered method. Methods
// listed in overrides (keyed by "operation.method") take the given
// tool name; the rest use DefaultName.
func FromMethods(methods []operation.Method, overrides map[string]string) (*Table, error) {
	entries := make([]Entry, 0, len(methods))
	for _, method := range methods {
		name, ok := overrides[method.Operation+"."+method.Method]
		if !ok {
			name = DefaultName(method.Operation, method.Method)
		}
		entries = append(entries, Entry{
			Tool:        name,
			Operation:   method.Operation,
			Method:      method.Method,
			Description: method.Description,
		})
	}
	return New(entries)
}

// DefaultName joins operation and method with an underscore and
// replaces characters tool names may not contain.
func DefaultName(operation, method string) string {
	return strings.Map(func(r rune) rune {
		if validRune(r) {
			return r
		}
		return '_'
	}, operation+"_"+method)
}

// ValidateName checks the tool-name alphabet: 1 to 64 characters from
// [A-Za-z0-9_-].
func ValidateName(name string) error {
	if name == "" || len(name) > 64 {
		return fmt.Errorf("tool name %q: must be 1 to 64 characters", name)
	}
	for _, r := range name {
		if !validRune(r) {
			return fmt.Errorf("tool name %q: invalid character %q", name, r)
		}
	}
	return nil
}

func validRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-'
}

// Resolve returns the operation and method behind tool.
func (t *Table) Resolve(tool string) (operation, method string, ok bool) {
	entry, ok := t.byTool[tool]
	return entry.Operation, entry.Method, ok
}

// Name returns the tool name for operation.method.
func (t *Table) Name(operation, method string) (string, bool) {
	name, ok := t.byTarget[target{operation, method}]
	return name, ok
}

// Entries returns every tool ordered by name.
func (t *Table) Entries() []Entry {
	entries := make([]Entry, 0, len(t.byTool))
	for _, entry := range t.byTool {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Tool < entries[j].Tool })
	return entries
}
