// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/warden/lib/callctx"
	"github.com/bureau-foundation/warden/lib/clock"
)

const yamlSeed = `
supplies:
  - id: operators
    name: operators over ipc
    priority: 900
    caller_classes: [user]
    entry_points: [ipc]
    action: allow
  - id: agent-burst
    name: agent burst limit
    priority: 500
    caller_classes: [agent]
    action: rate-limit
    rate_limit:
      window: 1m
      max: 30
      key: caller
`

const jsoncSeed = `{
  // remote peers may only read
  "supplies": [
    {
      "id": "remote-read",
      "name": "remote reads",
      "priority": 100,
      "caller_classes": ["remote"],
      "methods": ["get*", "list*"],
      "action": "allow-with-audit", /* audited */
    },
  ],
}`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestReadSeedFileYAML(t *testing.T) {
	rules, err := ReadSeedFile(writeFile(t, "supplies.yaml", yamlSeed))
	if err != nil {
		t.Fatalf("ReadSeedFile: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("read %d supplies, want 2", len(rules))
	}
	limit := rules[1].RateLimit
	if limit == nil || limit.Window != time.Minute || limit.Max != 30 || limit.Key != KeyCaller {
		t.Fatalf("rate limit = %+v", limit)
	}
	if rules[0].EntryPoints[0] != callctx.EntryIPC {
		t.Fatalf("entry points = %v", rules[0].EntryPoints)
	}
}

func TestReadSeedFileJSONC(t *testing.T) {
	rules, err := ReadSeedFile(writeFile(t, "supplies.jsonc", jsoncSeed))
	if err != nil {
		t.Fatalf("ReadSeedFile: %v", err)
	}
	if len(rules) != 1 || rules[0].Action != ActionAllowWithAudit || len(rules[0].Methods) != 2 {
		t.Fatalf("rules = %+v", rules)
	}
}

func TestReadSeedFileRejectsMissingID(t *testing.T) {
	path := writeFile(t, "supplies.yaml", "supplies:\n  - name: nameless\n    action: allow\n")
	if _, err := ReadSeedFile(path); err == nil {
		t.Fatal("ReadSeedFile accepted a supply without an id")
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	store := &MemoryStore{}
	engine, err := NewEngine(context.Background(), Config{Store: store, Clock: clock.Fake(epoch), Logger: discardLogger()})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	path := writeFile(t, "supplies.yaml", yamlSeed)
	for range 2 {
		if _, err := engine.Seed(context.Background(), path); err != nil {
			t.Fatalf("Seed: %v", err)
		}
	}
	if got := len(engine.Supplies()); got != 2 {
		t.Fatalf("Supplies() has %d entries after seeding twice, want 2", got)
	}
	stored, _ := store.LoadRules(context.Background())
	if len(stored) != 2 {
		t.Fatalf("store has %d entries after seeding twice, want 2", len(stored))
	}
}
