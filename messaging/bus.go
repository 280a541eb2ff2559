// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"sync"
)

// Bus is an in-process Channel. Every envelope sent on it is delivered
// synchronously to every subscriber, the sender included.
type Bus struct {
	mu       sync.Mutex
	handlers []Handler
	sent     []Envelope
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers handler for every later Send.
func (b *Bus) Subscribe(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// Send records the envelope and delivers it. Handlers run on the
// caller's goroutine without the bus lock held.
func (b *Bus) Send(ctx context.Context, scopeID string, envelope Envelope) error {
	if envelope.ScopeID == "" {
		envelope.ScopeID = scopeID
	}
	b.mu.Lock()
	b.sent = append(b.sent, envelope)
	handlers := append([]Handler(nil), b.handlers...)
	b.mu.Unlock()

	for _, handler := range handlers {
		handler(ctx, envelope)
	}
	return nil
}

// Sent returns a copy of every envelope sent so far, in order.
func (b *Bus) Sent() []Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Envelope(nil), b.sent...)
}

// Count returns how many envelopes of the given type were sent.
func (b *Bus) Count(envelopeType EnvelopeType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	count := 0
	for _, envelope := range b.sent {
		if envelope.Type == envelopeType {
			count++
		}
	}
	return count
}
