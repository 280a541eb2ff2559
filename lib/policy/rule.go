// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/warden/lib/callctx"
)

// Action is what a supply does with a call it matches.
type Action string

const (
	ActionAllow          Action = "allow"
	ActionDeny           Action = "deny"
	ActionAllowWithAudit Action = "allow-with-audit"
	ActionRateLimit      Action = "rate-limit"
)

// KeyDimension selects which part of a call a rate-limit counter is
// keyed on.
type KeyDimension string

const (
	KeyCaller    KeyDimension = "caller"
	KeyScope     KeyDimension = "scope"
	KeyMethod    KeyDimension = "method"
	KeyOperation KeyDimension = "operation"
)

// RateLimit caps calls to Max per Window for each distinct Key value.
type RateLimit struct {
	Window time.Duration `json:"window" yaml:"window"`
	Max    int           `json:"max" yaml:"max"`
	Key    KeyDimension  `json:"key" yaml:"key"`
}

// Rule is one supply. Empty allow-lists match everything, except
// Scopes: a rule that lists scopes only matches calls carrying one of
// them.
type Rule struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Priority int    `json:"priority" yaml:"priority"`

	Operations    []string              `json:"operations,omitempty" yaml:"operations,omitempty"`
	Methods       []string              `json:"methods,omitempty" yaml:"methods,omitempty"`
	CallerClasses []callctx.CallerClass `json:"caller_classes,omitempty" yaml:"caller_classes,omitempty"`
	EntryPoints   []callctx.EntryPoint  `json:"entry_points,omitempty" yaml:"entry_points,omitempty"`
	Scopes        []string              `json:"scopes,omitempty" yaml:"scopes,omitempty"`

	Action    Action     `json:"action" yaml:"action"`
	RateLimit *RateLimit `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`

	// Condition is an optional boolean expression over the call. See
	// conditionEnv for the variables it can reference.
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// StripParams lists parameter keys removed before execution when
	// this rule grants access.
	StripParams []string `json:"strip_params,omitempty" yaml:"strip_params,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// Validate checks the rule's shape. It does not compile Condition.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("supply %q: name is required", r.ID)
	}
	switch r.Action {
	case ActionAllow, ActionDeny, ActionAllowWithAudit:
		if r.RateLimit != nil {
			return fmt.Errorf("supply %q: rate_limit is only valid with action %q", r.Name, ActionRateLimit)
		}
	case ActionRateLimit:
		if r.RateLimit == nil {
			return fmt.Errorf("supply %q: action %q requires rate_limit", r.Name, ActionRateLimit)
		}
		if r.RateLimit.Window <= 0 {
			return fmt.Errorf("supply %q: rate_limit.window must be positive", r.Name)
		}
		if r.RateLimit.Max <= 0 {
			return fmt.Errorf("supply %q: rate_limit.max must be positive", r.Name)
		}
		switch r.RateLimit.Key {
		case KeyCaller, KeyScope, KeyMethod, KeyOperation:
		default:
			return fmt.Errorf("supply %q: unknown rate_limit.key %q", r.Name, r.RateLimit.Key)
		}
	default:
		return fmt.Errorf("supply %q: unknown action %q", r.Name, r.Action)
	}
	for _, class := range r.CallerClasses {
		if !class.Valid() {
			return fmt.Errorf("supply %q: unknown caller class %q", r.Name, class)
		}
	}
	for _, entry := range r.EntryPoints {
		if !entry.Valid() {
			return fmt.Errorf("supply %q: unknown entry point %q", r.Name, entry)
		}
	}
	for _, pattern := range append(append([]string(nil), r.Operations...), r.Methods...) {
		if err := ValidatePattern(pattern); err != nil {
			return fmt.Errorf("supply %q: %w", r.Name, err)
		}
	}
	return nil
}
