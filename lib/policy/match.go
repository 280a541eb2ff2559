// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"
	"strings"
)

// MatchPattern reports whether name matches pattern. Patterns are one
// of:
//
//   - "*" matches any name
//   - "prefix*" matches names starting with prefix
//   - "*suffix" matches names ending with suffix
//   - anything else matches only itself
func MatchPattern(pattern, name string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(name, pattern[:len(pattern)-1])
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(name, pattern[1:])
	default:
		return pattern == name
	}
}

// ValidatePattern rejects patterns MatchPattern would misread: empty
// strings and wildcards anywhere but one end.
func ValidatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty pattern")
	}
	if pattern == "*" {
		return nil
	}
	inner := strings.TrimSuffix(pattern, "*")
	if inner == pattern {
		inner = strings.TrimPrefix(pattern, "*")
	}
	if strings.Contains(inner, "*") {
		return fmt.Errorf("pattern %q: wildcard is only allowed at one end", pattern)
	}
	return nil
}

// matchAnyPattern is true when patterns is empty or any pattern
// matches name.
func matchAnyPattern(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if MatchPattern(pattern, name) {
			return true
		}
	}
	return false
}

// allowListed is true when list is empty or contains value.
func allowListed[T comparable](list []T, value T) bool {
	if len(list) == 0 {
		return true
	}
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
