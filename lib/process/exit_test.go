// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCode(t *testing.T) {
	base := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", base, ExitFailure},
		{"coded", WithCode(ExitDenied, base), ExitDenied},
		{"wrapped coded", fmt.Errorf("running: %w", WithCode(ExitUsage, base)), ExitUsage},
		{"nil stays nil", WithCode(ExitDenied, nil), 0},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("%s: ExitCode = %d, want %d", tt.name, got, tt.want)
		}
	}

	if err := WithCode(ExitDenied, base); !errors.Is(err, base) || err.Error() != "boom" {
		t.Errorf("WithCode should wrap transparently, got %v", err)
	}
}
