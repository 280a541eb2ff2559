// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"slices"
	"time"

	"github.com/bureau-foundation/warden/lib/objectstore"
)

// Supply is a provider's offer of remote tool access inside one scope.
// An empty AllowedTools offers every tool.
type Supply struct {
	ScopeID      string    `json:"scope_id"`
	Provider     string    `json:"provider"`
	AllowedTools []string  `json:"allowed_tools,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Demand is a consumer's request for access inside one scope.
type Demand struct {
	ScopeID   string    `json:"scope_id"`
	Consumer  string    `json:"consumer"`
	CreatedAt time.Time `json:"created_at"`
}

// Credential is the grant issued when a demand meets a supply.
type Credential struct {
	ID           string     `json:"id"`
	ScopeID      string     `json:"scope_id"`
	Provider     string     `json:"provider"`
	Consumer     string     `json:"consumer"`
	AllowedTools []string   `json:"allowed_tools,omitempty"`
	IssuedAt     time.Time  `json:"issued_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
}

// Live reports whether the credential has not been revoked.
func (c Credential) Live() bool { return c.RevokedAt == nil }

// Allows reports whether the credential permits tool. An empty
// allow-list permits every tool.
func (c Credential) Allows(tool string) bool {
	return len(c.AllowedTools) == 0 || slices.Contains(c.AllowedTools, tool)
}

// ToolCall is the stored description of one remote invocation.
type ToolCall struct {
	Tool      string         `cbor:"tool"`
	Params    map[string]any `cbor:"params,omitempty"`
	Caller    string         `cbor:"caller"`
	ScopeID   string         `cbor:"scope_id"`
	CreatedAt time.Time      `cbor:"created_at"`
}

// ToolResult is the stored outcome of a ToolCall. A failed execution
// is still a ToolResult with Success false.
type ToolResult struct {
	Success     bool          `cbor:"success"`
	Value       any           `cbor:"value,omitempty"`
	Error       string        `cbor:"error,omitempty"`
	Category    string        `cbor:"category,omitempty"`
	Duration    time.Duration `cbor:"duration"`
	CompletedAt time.Time     `cbor:"completed_at"`
}

// Request asks a provider to run the ToolCall stored under ToolCall.
type Request struct {
	RequestID string                `json:"request_id"`
	ScopeID   string                `json:"scope_id"`
	Provider  string                `json:"provider"`
	ToolCall  objectstore.ContentID `json:"tool_call"`
}

// Response answers a Request. Either Result names a stored ToolResult
// or Error explains why the call never ran.
type Response struct {
	RequestID string                `json:"request_id"`
	Result    objectstore.ContentID `json:"result"`
	Error     string                `json:"error,omitempty"`
}
