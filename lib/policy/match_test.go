// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import "testing"

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"*", "anything", true},
		{"*", "", true},
		{"tasks", "tasks", true},
		{"tasks", "tasks2", false},
		{"get*", "getUser", true},
		{"get*", "get", true},
		{"get*", "forget", false},
		{"*List", "userList", true},
		{"*List", "ListUsers", false},
		{"", "", true},
	}
	for _, test := range tests {
		if got := MatchPattern(test.pattern, test.name); got != test.want {
			t.Errorf("MatchPattern(%q, %q) = %v, want %v", test.pattern, test.name, got, test.want)
		}
	}
}

func TestValidatePattern(t *testing.T) {
	valid := []string{"*", "tasks", "get*", "*List"}
	for _, pattern := range valid {
		if err := ValidatePattern(pattern); err != nil {
			t.Errorf("ValidatePattern(%q) = %v, want nil", pattern, err)
		}
	}
	invalid := []string{"", "a*b", "*mid*", "**"}
	for _, pattern := range invalid {
		if err := ValidatePattern(pattern); err == nil {
			t.Errorf("ValidatePattern(%q) = nil, want error", pattern)
		}
	}
}
