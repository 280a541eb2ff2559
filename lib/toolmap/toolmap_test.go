// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package toolmap

import (
	"testing"

	"github.com/bureau-foundation/warden/lib/operation"
)

func TestFromMethods(t *testing.T) {
	table, err := FromMethods([]operation.Method{
		{Operation: "plan", Method: "list", Description: "List plans"},
		{Operation: "plan.items", Method: "add"},
		{Operation: "notes", Method: "read"},
	}, map[string]string{"notes.read": "read-notes"})
	if err != nil {
		t.Fatalf("FromMethods: %v", err)
	}

	tests := []struct {
		tool, operation, method string
	}{
		{"plan_list", "plan", "list"},
		{"plan_items_add", "plan.items", "add"},
		{"read-notes", "notes", "read"},
	}
	for _, test := range tests {
		operation, method, ok := table.Resolve(test.tool)
		if !ok || operation != test.operation || method != test.method {
			t.Errorf("Resolve(%q) = %q, %q, %v", test.tool, operation, method, ok)
		}
		name, ok := table.Name(test.operation, test.method)
		if !ok || name != test.tool {
			t.Errorf("Name(%q, %q) = %q, %v", test.operation, test.method, name, ok)
		}
	}
	if _, _, ok := table.Resolve("notes_read"); ok {
		t.Error("overridden default name still resolves")
	}
	if entries := table.Entries(); len(entries) != 3 || entries[0].Tool != "plan_items_add" {
		t.Errorf("Entries = %+v", entries)
	}
}

func TestNewRejectsConflicts(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
	}{
		{"duplicate tool", []Entry{{Tool: "a", Operation: "x", Method: "1"}, {Tool: "a", Operation: "y", Method: "2"}}},
		{"duplicate target", []Entry{{Tool: "a", Operation: "x", Method: "1"}, {Tool: "b", Operation: "x", Method: "1"}}},
		{"bad name", []Entry{{Tool: "has space", Operation: "x", Method: "1"}}},
		{"missing method", []Entry{{Tool: "a", Operation: "x"}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := New(test.entries); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
