// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import "time"

// ReasonNoMatch is the reason given when no supply grants access.
const ReasonNoMatch = "No matching supply"

// Decision is the outcome of evaluating one call.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`

	// MatchedRules lists the ids of every supply that matched, in
	// evaluation order. Rate-limit supplies that let the call through
	// appear here too.
	MatchedRules []string `json:"matched_rules"`

	// FilteredParams replaces the caller's parameters when non-nil.
	FilteredParams map[string]any `json:"filtered_params,omitempty"`

	// RateLimit describes the last rate-limit window the call was
	// counted against.
	RateLimit *RateLimitStatus `json:"rate_limit,omitempty"`

	// Audit asks the router to record the execution outcome.
	Audit bool `json:"audit"`
}

// RateLimitStatus is a snapshot of one rate-limit window.
type RateLimitStatus struct {
	RuleID     string        `json:"rule_id"`
	Limit      int           `json:"limit"`
	Count      int           `json:"count"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}
