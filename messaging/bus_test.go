// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"testing"
)

func TestBusDeliversToEverySubscriber(t *testing.T) {
	bus := NewBus()
	var first, second []Envelope
	bus.Subscribe(func(ctx context.Context, envelope Envelope) { first = append(first, envelope) })
	bus.Subscribe(func(ctx context.Context, envelope Envelope) { second = append(second, envelope) })

	envelope, err := NewEnvelope(EnvelopeCredential, "provider", "", map[string]string{"id": "c1"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	if err := bus.Send(context.Background(), "topic-1", envelope); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("deliveries = %d, %d; want 1, 1", len(first), len(second))
	}
	if first[0].ScopeID != "topic-1" {
		t.Errorf("scope = %q, want topic-1", first[0].ScopeID)
	}
	var content map[string]string
	if err := first[0].Decode(&content); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if content["id"] != "c1" {
		t.Errorf("content = %v", content)
	}
	if got := bus.Count(EnvelopeCredential); got != 1 {
		t.Errorf("Count = %d, want 1", got)
	}
}

func TestBusHandlerMaySend(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(func(ctx context.Context, envelope Envelope) {
		if envelope.Type == EnvelopeRequest {
			reply := Envelope{Type: EnvelopeResponse, Sender: "provider"}
			if err := bus.Send(ctx, envelope.ScopeID, reply); err != nil {
				t.Errorf("nested Send: %v", err)
			}
		}
	})
	if err := bus.Send(context.Background(), "s", Envelope{Type: EnvelopeRequest}); err != nil {
		t.Fatal(err)
	}
	if got := bus.Count(EnvelopeResponse); got != 1 {
		t.Fatalf("responses = %d, want 1", got)
	}
}

func TestNewEnvelopeRejectsUnknownType(t *testing.T) {
	if _, err := NewEnvelope("gossip", "a", "s", nil); err == nil {
		t.Fatal("expected error for unknown envelope type")
	}
}
