// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"

	"golang.org/x/term"
)

// WriteJSON writes value to w as indented JSON. A nil slice is written
// as [] rather than null.
func WriteJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(normalizeNilSlice(value)); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

// DecodeValue converts a generic result value, as decoded from the
// socket, into target by way of its JSON form.
func DecodeValue(value any, target any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("re-encoding result: %w", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decoding result: %w", err)
	}
	return nil
}

func normalizeNilSlice(value any) any {
	if value == nil {
		return value
	}
	reflected := reflect.ValueOf(value)
	if reflected.Kind() == reflect.Slice && reflected.IsNil() {
		return reflect.MakeSlice(reflected.Type(), 0, 0).Interface()
	}
	return value
}

// StdoutIsTerminal reports whether stdout is a terminal, which is when
// tables are rendered styled.
func StdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
