// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package operation

// String returns params[key] when it is a non-empty string, or a
// validation error.
func String(params map[string]any, key string) (string, error) {
	value, ok := params[key].(string)
	if !ok || value == "" {
		return "", Validation("parameter %q is required and must be a string", key)
	}
	return value, nil
}

// OptionalString returns params[key] when it is a string, else "".
func OptionalString(params map[string]any, key string) string {
	value, _ := params[key].(string)
	return value
}

// Strings returns params[key] as a string list. A missing key yields
// nil; any non-string element is a validation error.
func Strings(params map[string]any, key string) ([]string, error) {
	switch value := params[key].(type) {
	case nil:
		return nil, nil
	case []string:
		return value, nil
	case []any:
		result := make([]string, 0, len(value))
		for _, item := range value {
			text, ok := item.(string)
			if !ok {
				return nil, Validation("parameter %q must be a list of strings", key)
			}
			result = append(result, text)
		}
		return result, nil
	default:
		return nil, Validation("parameter %q must be a list of strings", key)
	}
}

// Int returns params[key] as an int. JSON numbers arrive as float64
// and CBOR integers as uint64 or int64; all are accepted. A missing
// key yields fallback.
func Int(params map[string]any, key string, fallback int) (int, error) {
	switch value := params[key].(type) {
	case nil:
		return fallback, nil
	case int:
		return value, nil
	case int64:
		return int(value), nil
	case uint64:
		return int(value), nil
	case float64:
		if value != float64(int(value)) {
			return 0, Validation("parameter %q must be an integer", key)
		}
		return int(value), nil
	default:
		return 0, Validation("parameter %q must be an integer", key)
	}
}
