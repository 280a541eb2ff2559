// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"fmt"
	"time"

	"github.com/bureau-foundation/warden/lib/codec"
)

// Action names understood by a warden daemon.
const (
	ActionCall   = "call"
	ActionStatus = "status"
)

// CallRequest is the body of a "call" action.
type CallRequest struct {
	Action         string         `cbor:"action"`
	Operation      string         `cbor:"operation"`
	Method         string         `cbor:"method"`
	Params         map[string]any `cbor:"params,omitempty"`
	TopicID        string         `cbor:"topic_id,omitempty"`
	ConversationID string         `cbor:"conversation_id,omitempty"`
}

// Response is the wire envelope for every reply.
type Response struct {
	OK    bool   `cbor:"ok"`
	Error string `cbor:"error,omitempty"`

	// Denied is set when policy refused the call. RetryAfter is
	// non-zero when the refusal was a rate limit.
	Denied     bool          `cbor:"denied,omitempty"`
	RetryAfter time.Duration `cbor:"retry_after,omitempty"`

	Data codec.RawMessage `cbor:"data,omitempty"`
}

// Peer is the kernel-reported identity of the process at the other
// end of a connection.
type Peer struct {
	PID int
	UID int
	GID int
}

// ID is the caller id recorded for the peer in request contexts and
// audit entries.
func (p Peer) ID() string {
	return fmt.Sprintf("uid:%d", p.UID)
}

// Status is the data returned by the "status" action.
type Status struct {
	Identity string `cbor:"identity"`
	Version  string `cbor:"version"`
	Caller   string `cbor:"caller"`
}
