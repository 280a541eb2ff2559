// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"strings"
	"unicode/utf8"
)

const (
	// RedactedValue replaces values stored under sensitive keys.
	RedactedValue = "[REDACTED]"

	// TruncatedMarker is appended to strings cut at the length limit.
	TruncatedMarker = "...[truncated]"
)

// sensitiveKeys are matched against parameter keys lowercased with
// '_' and '-' removed, so "api_key", "apiKey" and "X-Api-Key" all hit.
var sensitiveKeys = []string{"password", "secret", "token", "apikey", "privatekey"}

func isSensitive(key string) bool {
	normalized := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(key))
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(normalized, sensitive) {
			return true
		}
	}
	return false
}

// Redact returns a copy of params with sensitive values replaced and
// strings longer than maxLength bytes truncated. Nested maps and slices
// are walked. params is not modified.
func Redact(params map[string]any, maxLength int) map[string]any {
	if params == nil {
		return nil
	}
	return redactMap(params, maxLength)
}

func redactMap(values map[string]any, maxLength int) map[string]any {
	redacted := make(map[string]any, len(values))
	for key, value := range values {
		if isSensitive(key) {
			redacted[key] = RedactedValue
			continue
		}
		redacted[key] = redactValue(value, maxLength)
	}
	return redacted
}

func redactValue(value any, maxLength int) any {
	switch typed := value.(type) {
	case string:
		return truncate(typed, maxLength)
	case map[string]any:
		return redactMap(typed, maxLength)
	case []any:
		items := make([]any, len(typed))
		for index, item := range typed {
			items[index] = redactValue(item, maxLength)
		}
		return items
	case []string:
		items := make([]any, len(typed))
		for index, item := range typed {
			items[index] = truncate(item, maxLength)
		}
		return items
	default:
		return value
	}
}

func truncate(value string, maxLength int) string {
	if maxLength <= 0 || len(value) <= maxLength {
		return value
	}
	cut := maxLength
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut] + TruncatedMarker
}
