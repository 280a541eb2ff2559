// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package router

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/warden/lib/operation"
	"github.com/bureau-foundation/warden/lib/policy"
)

// Result is the outcome of an allowed call. Exactly one of Value (when
// Success) or Error is meaningful.
type Result struct {
	RequestID string             `json:"request_id"`
	Success   bool               `json:"success"`
	Value     any                `json:"value,omitempty"`
	Error     string             `json:"error,omitempty"`
	Category  operation.Category `json:"category,omitempty"`
	Duration  time.Duration      `json:"duration"`
}

// PolicyDeniedError is returned by Call when policy refused the call.
// Test for it with errors.As.
type PolicyDeniedError struct {
	Operation string
	Method    string
	Decision  policy.Decision
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("policy denied %s.%s: %s", e.Operation, e.Method, e.Decision.Reason)
}

// RetryAfter is how long a rate-limited caller should wait, or zero
// when the denial was not a rate limit.
func (e *PolicyDeniedError) RetryAfter() time.Duration {
	if e.Decision.RateLimit == nil {
		return 0
	}
	return e.Decision.RateLimit.RetryAfter
}
