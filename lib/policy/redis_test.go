// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/bureau-foundation/warden/lib/clock"
)

func TestRedisCounterCountsAndExpires(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	counter := NewRedisCounter(client, "test:", clock.Fake(epoch), discardLogger())
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		window, err := counter.Hit(ctx, "caller:bot", time.Minute)
		if err != nil {
			t.Fatalf("Hit: %v", err)
		}
		if window.Count != want {
			t.Fatalf("Count = %d, want %d", window.Count, want)
		}
		if !window.ResetAt.After(epoch) {
			t.Fatalf("ResetAt = %v, want after %v", window.ResetAt, epoch)
		}
	}
	if ttl := server.TTL("test:caller:bot"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("key TTL = %v, want within one window", ttl)
	}

	server.FastForward(time.Minute + time.Second)
	window, err := counter.Hit(ctx, "caller:bot", time.Minute)
	if err != nil {
		t.Fatalf("Hit: %v", err)
	}
	if window.Count != 1 {
		t.Fatalf("Count after expiry = %d, want 1", window.Count)
	}
}

func TestRedisCounterFallsBackWhenUnavailable(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	defer client.Close()
	server.Close()

	counter := NewRedisCounter(client, "", clock.Fake(epoch), discardLogger())
	for want := 1; want <= 2; want++ {
		window, err := counter.Hit(context.Background(), "k", time.Minute)
		if err != nil {
			t.Fatalf("Hit: %v", err)
		}
		if window.Count != want {
			t.Fatalf("fallback Count = %d, want %d", window.Count, want)
		}
	}
}

func TestEngineWithRedisCounter(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer server.Close()
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	fakeClock := clock.Fake(epoch)
	engine, err := NewEngine(context.Background(), Config{
		Clock:   fakeClock,
		Counter: NewRedisCounter(client, "", fakeClock, discardLogger()),
		Logger:  discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	for _, rule := range []Rule{
		{ID: "limit", Name: "limit", Priority: 10, Action: ActionRateLimit, RateLimit: &RateLimit{Window: time.Minute, Max: 2, Key: KeyCaller}},
		{ID: "allow", Name: "allow", Action: ActionAllow},
	} {
		if _, err := engine.CreateSupply(context.Background(), rule); err != nil {
			t.Fatalf("CreateSupply: %v", err)
		}
	}
	rc := newContext(t, "bot", "agent", "mcp", "")
	var last Decision
	for range 3 {
		last = engine.Evaluate(context.Background(), rc, "tasks", "create", nil)
	}
	if last.Allowed || last.RateLimit == nil || last.RateLimit.RetryAfter <= 0 {
		t.Fatalf("third call = %+v, want denied with RetryAfter", last)
	}
}
