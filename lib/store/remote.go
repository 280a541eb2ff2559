// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/warden/lib/remote"
	"github.com/bureau-foundation/warden/lib/sqlitepool"
)

// RemoteStore implements remote.Store.
type RemoteStore struct {
	pool *sqlitepool.Pool
}

func encodeTools(tools []string) (string, error) {
	if tools == nil {
		tools = []string{}
	}
	data, err := json.Marshal(tools)
	return string(data), err
}

func decodeTools(text string) ([]string, error) {
	var tools []string
	if err := json.Unmarshal([]byte(text), &tools); err != nil {
		return nil, err
	}
	if len(tools) == 0 {
		return nil, nil
	}
	return tools, nil
}

func (s *RemoteStore) SaveSupply(ctx context.Context, supply remote.Supply) error {
	tools, err := encodeTools(supply.AllowedTools)
	if err != nil {
		return err
	}
	return s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT OR REPLACE INTO remote_supplies (scope_id, provider, allowed_tools, created_at)
			VALUES (?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{supply.ScopeID, supply.Provider, tools, unixNanos(supply.CreatedAt)}})
	})
}

func (s *RemoteStore) DeleteSupply(ctx context.Context, scopeID, provider string) error {
	return s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "DELETE FROM remote_supplies WHERE scope_id = ? AND provider = ?",
			&sqlitex.ExecOptions{Args: []any{scopeID, provider}})
	})
}

func (s *RemoteStore) LoadSupplies(ctx context.Context, provider string) ([]remote.Supply, error) {
	var supplies []remote.Supply
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT scope_id, allowed_tools, created_at FROM remote_supplies
			WHERE provider = ? ORDER BY scope_id`,
			&sqlitex.ExecOptions{
				Args: []any{provider},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					tools, err := decodeTools(stmt.ColumnText(1))
					if err != nil {
						return fmt.Errorf("decoding tools of supply %s: %w", stmt.ColumnText(0), err)
					}
					supplies = append(supplies, remote.Supply{
						ScopeID:      stmt.ColumnText(0),
						Provider:     provider,
						AllowedTools: tools,
						CreatedAt:    fromUnixNanos(stmt.ColumnInt64(2)),
					})
					return nil
				},
			})
	})
	if err != nil {
		return nil, err
	}
	return supplies, nil
}

func (s *RemoteStore) SaveDemand(ctx context.Context, demand remote.Demand) error {
	return s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "INSERT INTO remote_demands (scope_id, consumer, created_at) VALUES (?, ?, ?)",
			&sqlitex.ExecOptions{Args: []any{demand.ScopeID, demand.Consumer, unixNanos(demand.CreatedAt)}})
	})
}

func (s *RemoteStore) SaveCredential(ctx context.Context, credential remote.Credential) error {
	tools, err := encodeTools(credential.AllowedTools)
	if err != nil {
		return err
	}
	var revokedAt any
	if credential.RevokedAt != nil {
		revokedAt = credential.RevokedAt.UnixNano()
	}
	return s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			INSERT OR REPLACE INTO remote_credentials
				(id, scope_id, provider, consumer, allowed_tools, issued_at, revoked_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			&sqlitex.ExecOptions{Args: []any{
				credential.ID,
				credential.ScopeID,
				credential.Provider,
				credential.Consumer,
				tools,
				unixNanos(credential.IssuedAt),
				revokedAt,
			}})
	})
}

func (s *RemoteStore) LoadCredentials(ctx context.Context) ([]remote.Credential, error) {
	var credentials []remote.Credential
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `
			SELECT id, scope_id, provider, consumer, allowed_tools, issued_at, revoked_at
			FROM remote_credentials ORDER BY issued_at, id`,
			&sqlitex.ExecOptions{
				ResultFunc: func(stmt *sqlite.Stmt) error {
					tools, err := decodeTools(stmt.ColumnText(4))
					if err != nil {
						return fmt.Errorf("decoding tools of credential %s: %w", stmt.ColumnText(0), err)
					}
					credential := remote.Credential{
						ID:           stmt.ColumnText(0),
						ScopeID:      stmt.ColumnText(1),
						Provider:     stmt.ColumnText(2),
						Consumer:     stmt.ColumnText(3),
						AllowedTools: tools,
						IssuedAt:     fromUnixNanos(stmt.ColumnInt64(5)),
					}
					if revoked := stmt.ColumnInt64(6); revoked != 0 {
						revokedAt := fromUnixNanos(revoked)
						credential.RevokedAt = &revokedAt
					}
					credentials = append(credentials, credential)
					return nil
				},
			})
	})
	if err != nil {
		return nil, err
	}
	return credentials, nil
}
