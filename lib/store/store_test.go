// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/warden/lib/audit"
	"github.com/bureau-foundation/warden/lib/callctx"
	"github.com/bureau-foundation/warden/lib/clock"
	"github.com/bureau-foundation/warden/lib/objectstore"
	"github.com/bureau-foundation/warden/lib/policy"
	"github.com/bureau-foundation/warden/lib/remote"
)

var epoch = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T, path string) *DB {
	t.Helper()
	if path == "" {
		path = filepath.Join(t.TempDir(), "warden.db")
	}
	db, err := Open(context.Background(), Config{Path: path, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRuleStoreKeepsOrderAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rules.db")
	fake := clock.Fake(epoch)

	db, err := Open(ctx, Config{Path: path, Logger: discardLogger()})
	if err != nil {
		t.Fatal(err)
	}
	engine, err := policy.NewEngine(ctx, policy.Config{Store: db.Rules(), Clock: fake, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	rules := []policy.Rule{
		{ID: "a", Name: "first", Priority: 10, Action: policy.ActionAllow},
		{ID: "b", Name: "second", Priority: 10, Action: policy.ActionDeny},
		{
			ID: "c", Name: "limit", Priority: 50, Action: policy.ActionRateLimit,
			RateLimit: &policy.RateLimit{Window: time.Minute, Max: 3, Key: policy.KeyCaller},
		},
	}
	for _, rule := range rules {
		if _, err := engine.CreateSupply(ctx, rule); err != nil {
			t.Fatalf("CreateSupply(%s): %v", rule.ID, err)
		}
	}
	// Replacing "a" must keep it ahead of "b" on the priority tie.
	rules[0].Name = "first, renamed"
	if _, err := engine.CreateSupply(ctx, rules[0]); err != nil {
		t.Fatal(err)
	}
	if err := engine.RemoveSupply(ctx, "missing"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	reopened := openTestDB(t, path)
	restored, err := policy.NewEngine(ctx, policy.Config{Store: reopened.Rules(), Clock: fake, Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewEngine after reopen: %v", err)
	}
	supplies := restored.Supplies()
	var ids []string
	for _, supply := range supplies {
		ids = append(ids, supply.ID)
	}
	if len(ids) != 3 || ids[0] != "c" || ids[1] != "a" || ids[2] != "b" {
		t.Fatalf("restored order = %v, want [c a b]", ids)
	}
	if supplies[1].Name != "first, renamed" {
		t.Errorf("replacement not persisted: %q", supplies[1].Name)
	}
	if supplies[0].RateLimit == nil || supplies[0].RateLimit.Window != time.Minute {
		t.Errorf("rate limit not persisted: %+v", supplies[0].RateLimit)
	}

	if err := restored.RemoveSupply(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	stored, err := reopened.Rules().LoadRules(ctx)
	if err != nil || len(stored) != 2 {
		t.Fatalf("LoadRules = %d rules, %v", len(stored), err)
	}
}

func TestAuditStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, "")
	fake := clock.Fake(epoch)
	logger, err := audit.NewLogger(audit.Config{Storage: db.Audit(), Clock: fake, Logger: discardLogger()})
	if err != nil {
		t.Fatal(err)
	}
	defer logger.Close(ctx)

	newContext := func(caller, topic string, at time.Time) callctx.RequestContext {
		rc, err := callctx.New(callctx.Options{
			CallerID: caller, CallerClass: callctx.CallerUser, EntryPoint: callctx.EntryIPC,
			TopicID: topic, Timestamp: at,
		})
		if err != nil {
			t.Fatal(err)
		}
		return rc
	}

	first := newContext("ana", "topic-1", epoch)
	second := newContext("ben", "topic-2", epoch.Add(time.Second))
	logger.LogRequest(first, "plan", "list", map[string]any{"apiKey": "k"}, policy.Decision{Allowed: true, MatchedRules: []string{"r1"}})
	logger.LogRequest(second, "plan", "delete", nil, policy.Decision{Allowed: false, Reason: policy.ReasonNoMatch})
	logger.LogResult(first.RequestID(), 25*time.Millisecond, nil)

	entries, err := logger.Query(ctx, audit.Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Query returned %d entries, want 2", len(entries))
	}
	if entries[0].RequestID != second.RequestID() {
		t.Errorf("newest entry = %s, want %s", entries[0].RequestID, second.RequestID())
	}
	if entries[0].DenyReason != policy.ReasonNoMatch || entries[0].Allowed {
		t.Errorf("denied entry = %+v", entries[0])
	}
	older := entries[1]
	if older.Params["apiKey"] != audit.RedactedValue {
		t.Errorf("params = %v, want apiKey redacted", older.Params)
	}
	if older.Outcome == nil || !older.Outcome.Success || older.Outcome.Duration != 25*time.Millisecond {
		t.Errorf("outcome = %+v", older.Outcome)
	}
	if len(older.MatchedRules) != 1 || older.MatchedRules[0] != "r1" {
		t.Errorf("matched rules = %v", older.MatchedRules)
	}

	denied := false
	tests := []struct {
		name   string
		filter audit.Filter
		want   int
	}{
		{"by caller", audit.Filter{CallerID: "ana"}, 1},
		{"by scope", audit.Filter{Scope: "topic-2"}, 1},
		{"by method", audit.Filter{Operation: "plan", Method: "list"}, 1},
		{"denied only", audit.Filter{Allowed: &denied}, 1},
		{"since", audit.Filter{Since: epoch.Add(time.Second)}, 1},
		{"until is exclusive", audit.Filter{Until: epoch.Add(time.Second)}, 1},
		{"limit", audit.Filter{Limit: 1}, 1},
		{"no match", audit.Filter{CallerID: "nobody"}, 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			entries, err := logger.Query(ctx, test.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != test.want {
				t.Fatalf("got %d entries, want %d", len(entries), test.want)
			}
		})
	}
}

func TestAuditStoreIgnoresRepeatedRecords(t *testing.T) {
	ctx := context.Background()
	storage := openTestDB(t, "").Audit()
	batch := audit.Batch{Records: []audit.Record{{
		ID: "e1", RequestID: "r1", CallerID: "ana", CallerClass: "user", EntryPoint: "ipc",
		Timestamp: epoch, Operation: "plan", Method: "list", Params: "{}", MatchedRules: "[]",
	}}}
	for range 2 {
		if err := storage.Store(ctx, batch); err != nil {
			t.Fatalf("Store: %v", err)
		}
	}
	records, err := storage.Query(ctx, audit.Filter{})
	if err != nil || len(records) != 1 {
		t.Fatalf("Query = %d records, %v; want 1", len(records), err)
	}
	if records[0].Outcome != nil {
		t.Errorf("outcome = %+v, want nil", records[0].Outcome)
	}
}

func TestRemoteStore(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t, "").Remote()

	supplies := []remote.Supply{
		{ScopeID: "topic-2", Provider: "p", CreatedAt: epoch},
		{ScopeID: "topic-1", Provider: "p", AllowedTools: []string{"plan_list"}, CreatedAt: epoch},
		{ScopeID: "topic-1", Provider: "q", CreatedAt: epoch},
	}
	for _, supply := range supplies {
		if err := store.SaveSupply(ctx, supply); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.DeleteSupply(ctx, "topic-2", "p"); err != nil {
		t.Fatal(err)
	}
	loaded, err := store.LoadSupplies(ctx, "p")
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 1 || loaded[0].ScopeID != "topic-1" || loaded[0].AllowedTools[0] != "plan_list" {
		t.Fatalf("LoadSupplies = %+v", loaded)
	}
	if !loaded[0].CreatedAt.Equal(epoch) {
		t.Errorf("CreatedAt = %v", loaded[0].CreatedAt)
	}

	if err := store.SaveDemand(ctx, remote.Demand{ScopeID: "topic-1", Consumer: "c", CreatedAt: epoch}); err != nil {
		t.Fatal(err)
	}

	credential := remote.Credential{ID: "c1", ScopeID: "topic-1", Provider: "p", Consumer: "c", IssuedAt: epoch}
	if err := store.SaveCredential(ctx, credential); err != nil {
		t.Fatal(err)
	}
	revokedAt := epoch.Add(time.Hour)
	credential.RevokedAt = &revokedAt
	if err := store.SaveCredential(ctx, credential); err != nil {
		t.Fatal(err)
	}
	credentials, err := store.LoadCredentials(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(credentials) != 1 {
		t.Fatalf("LoadCredentials = %d, want 1", len(credentials))
	}
	got := credentials[0]
	if got.Live() || !got.RevokedAt.Equal(revokedAt) {
		t.Errorf("RevokedAt = %v, want %v", got.RevokedAt, revokedAt)
	}
	if got.AllowedTools != nil {
		t.Errorf("AllowedTools = %v, want nil", got.AllowedTools)
	}
}

func TestObjectStore(t *testing.T) {
	ctx := context.Background()
	objects := openTestDB(t, "").Objects(objectstore.CompressionZstd)

	payload := bytes.Repeat([]byte("warden object "), 200)
	id, err := objects.Put(ctx, payload)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if again, err := objects.Put(ctx, payload); err != nil || again != id {
		t.Fatalf("second Put = %s, %v; want %s", again, err, id)
	}
	got, err := objects.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatal("Get returned different bytes")
	}

	if _, err := objects.Get(ctx, objectstore.Hash([]byte("absent"))); !errors.Is(err, objectstore.ErrNotFound) {
		t.Fatalf("Get(absent) error = %v, want ErrNotFound", err)
	}

	type call struct {
		Tool string `cbor:"tool"`
	}
	valueID, err := objectstore.PutValue(ctx, objects, call{Tool: "plan_list"})
	if err != nil {
		t.Fatal(err)
	}
	var decoded call
	if err := objectstore.GetValue(ctx, objects, valueID, &decoded); err != nil || decoded.Tool != "plan_list" {
		t.Fatalf("GetValue = %+v, %v", decoded, err)
	}
}
