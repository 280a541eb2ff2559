// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// EnvelopeType names the kind of payload an envelope carries.
type EnvelopeType string

const (
	EnvelopeDemand     EnvelopeType = "demand"
	EnvelopeCredential EnvelopeType = "credential"
	EnvelopeRequest    EnvelopeType = "request"
	EnvelopeResponse   EnvelopeType = "response"
)

// Valid reports whether t is one of the known envelope types.
func (t EnvelopeType) Valid() bool {
	switch t {
	case EnvelopeDemand, EnvelopeCredential, EnvelopeRequest, EnvelopeResponse:
		return true
	}
	return false
}

// EventTypePrefix is prepended to the envelope type to form the Matrix
// event type.
const EventTypePrefix = "warden.remote."

// EventType returns the Matrix event type used for t.
func (t EnvelopeType) EventType() string { return EventTypePrefix + string(t) }

// parseEventType is the inverse of EventType. It reports false for
// events that do not carry envelopes.
func parseEventType(eventType string) (EnvelopeType, bool) {
	kind, ok := strings.CutPrefix(eventType, EventTypePrefix)
	if !ok {
		return "", false
	}
	envelopeType := EnvelopeType(kind)
	return envelopeType, envelopeType.Valid()
}

// Envelope is one message exchanged between warden instances.
type Envelope struct {
	Type    EnvelopeType    `json:"type"`
	Sender  string          `json:"sender"`
	ScopeID string          `json:"scope_id"`
	Content json.RawMessage `json:"content"`
}

// NewEnvelope JSON-encodes content into an envelope.
func NewEnvelope(envelopeType EnvelopeType, sender, scopeID string, content any) (Envelope, error) {
	if !envelopeType.Valid() {
		return Envelope{}, fmt.Errorf("messaging: unknown envelope type %q", envelopeType)
	}
	encoded, err := json.Marshal(content)
	if err != nil {
		return Envelope{}, fmt.Errorf("messaging: encoding %s envelope: %w", envelopeType, err)
	}
	return Envelope{Type: envelopeType, Sender: sender, ScopeID: scopeID, Content: encoded}, nil
}

// Decode unmarshals the envelope content into target.
func (e Envelope) Decode(target any) error {
	if len(e.Content) == 0 {
		return fmt.Errorf("messaging: %s envelope has no content", e.Type)
	}
	if err := json.Unmarshal(e.Content, target); err != nil {
		return fmt.Errorf("messaging: decoding %s envelope: %w", e.Type, err)
	}
	return nil
}

// Channel delivers envelopes to the participants of a scope.
type Channel interface {
	Send(ctx context.Context, scopeID string, envelope Envelope) error
}

// Handler receives inbound envelopes.
type Handler func(ctx context.Context, envelope Envelope)
