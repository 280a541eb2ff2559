// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"time"

	"github.com/bureau-foundation/warden/lib/callctx"
)

// Entry is one audited call as returned by Query.
type Entry struct {
	ID             string              `json:"id"`
	RequestID      string              `json:"request_id"`
	CallerID       string              `json:"caller_id"`
	CallerClass    callctx.CallerClass `json:"caller_class"`
	EntryPoint     callctx.EntryPoint  `json:"entry_point"`
	TopicID        string              `json:"topic_id,omitempty"`
	ConversationID string              `json:"conversation_id,omitempty"`
	CredentialID   string              `json:"credential_id,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`

	Operation string         `json:"operation"`
	Method    string         `json:"method"`
	Params    map[string]any `json:"params,omitempty"`

	Allowed      bool     `json:"allowed"`
	DenyReason   string   `json:"deny_reason,omitempty"`
	MatchedRules []string `json:"matched_rules"`

	// Outcome is nil until the call's completion record is stored.
	Outcome *Outcome `json:"outcome,omitempty"`
}

// Outcome is the completion record for one request.
type Outcome struct {
	RequestID   string        `json:"request_id"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
	Success     bool          `json:"success"`
	Error       string        `json:"error,omitempty"`
}

// Record is an Entry in stored form: Params and MatchedRules are JSON.
type Record struct {
	ID             string
	RequestID      string
	CallerID       string
	CallerClass    string
	EntryPoint     string
	TopicID        string
	ConversationID string
	CredentialID   string
	Timestamp      time.Time
	Operation      string
	Method         string
	Params         string
	Allowed        bool
	DenyReason     string
	MatchedRules   string

	// Outcome is filled by Storage.Query from the completion records.
	Outcome *Outcome
}

// Batch is one flush: decision records and completion records written
// together.
type Batch struct {
	Records  []Record
	Outcomes []Outcome
}

// Empty reports whether the batch has nothing to write.
func (b Batch) Empty() bool { return len(b.Records) == 0 && len(b.Outcomes) == 0 }

// Filter narrows a Query. Zero fields do not filter. Results are
// newest first.
type Filter struct {
	RequestID string
	CallerID  string
	Operation string
	Method    string
	Scope     string // matches topic or conversation
	Allowed   *bool
	Since     time.Time
	Until     time.Time
	Limit     int // default 100
}

// DefaultLimit applies when Filter.Limit is not positive.
const DefaultLimit = 100

// Storage persists batches and answers queries. Store must be atomic:
// either the whole batch is durable or none of it is.
type Storage interface {
	Store(ctx context.Context, batch Batch) error
	Query(ctx context.Context, filter Filter) ([]Record, error)
}
