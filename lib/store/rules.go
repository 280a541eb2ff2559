// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/warden/lib/policy"
	"github.com/bureau-foundation/warden/lib/sqlitepool"
)

// RuleStore implements policy.Store. Rules load in the order they were
// first stored; replacing a rule keeps its position.
type RuleStore struct {
	pool *sqlitepool.Pool
}

func (s *RuleStore) StoreRule(ctx context.Context, rule policy.Rule) error {
	body, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("encoding supply %s: %w", rule.ID, err)
	}
	return s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT INTO rules (id, priority, body, created_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET priority = excluded.priority, body = excluded.body`,
			&sqlitex.ExecOptions{Args: []any{rule.ID, rule.Priority, string(body), unixNanos(rule.CreatedAt)}})
	})
}

func (s *RuleStore) LoadRules(ctx context.Context) ([]policy.Rule, error) {
	var rules []policy.Rule
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT id, body FROM rules ORDER BY seq", &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				var rule policy.Rule
				if err := json.Unmarshal([]byte(stmt.ColumnText(1)), &rule); err != nil {
					return fmt.Errorf("decoding supply %s: %w", stmt.ColumnText(0), err)
				}
				rules = append(rules, rule)
				return nil
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *RuleStore) DeleteRule(ctx context.Context, id string) error {
	return s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "DELETE FROM rules WHERE id = ?", &sqlitex.ExecOptions{Args: []any{id}})
	})
}
