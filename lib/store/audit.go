// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"strings"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/warden/lib/audit"
	"github.com/bureau-foundation/warden/lib/sqlitepool"
)

// AuditStore implements audit.Storage. Records and outcomes live in
// separate tables and are joined on request id at query time.
type AuditStore struct {
	pool *sqlitepool.Pool
}

// Store writes the whole batch in one transaction. A repeated record id
// is ignored so a batch re-queued after a partial failure elsewhere
// cannot duplicate entries.
func (s *AuditStore) Store(ctx context.Context, batch audit.Batch) error {
	if batch.Empty() {
		return nil
	}
	return s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		for _, record := range batch.Records {
			err := sqlitex.Execute(conn, `
				INSERT OR IGNORE INTO audit_records
					(id, request_id, caller_id, caller_class, entry_point,
					 topic_id, conversation_id, credential_id, timestamp,
					 operation, method, params, allowed, deny_reason, matched_rules)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				&sqlitex.ExecOptions{Args: []any{
					record.ID,
					record.RequestID,
					record.CallerID,
					record.CallerClass,
					record.EntryPoint,
					record.TopicID,
					record.ConversationID,
					record.CredentialID,
					unixNanos(record.Timestamp),
					record.Operation,
					record.Method,
					record.Params,
					boolInt(record.Allowed),
					record.DenyReason,
					record.MatchedRules,
				}})
			if err != nil {
				return err
			}
		}
		for _, outcome := range batch.Outcomes {
			err := sqlitex.Execute(conn, `
				INSERT OR REPLACE INTO audit_outcomes
					(request_id, completed_at, duration, success, error)
				VALUES (?, ?, ?, ?, ?)`,
				&sqlitex.ExecOptions{Args: []any{
					outcome.RequestID,
					unixNanos(outcome.CompletedAt),
					int64(outcome.Duration),
					boolInt(outcome.Success),
					outcome.Error,
				}})
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// Query returns matching records newest first.
func (s *AuditStore) Query(ctx context.Context, filter audit.Filter) ([]audit.Record, error) {
	var (
		conditions []string
		args       []any
	)
	add := func(condition string, values ...any) {
		conditions = append(conditions, condition)
		args = append(args, values...)
	}
	if filter.RequestID != "" {
		add("r.request_id = ?", filter.RequestID)
	}
	if filter.CallerID != "" {
		add("r.caller_id = ?", filter.CallerID)
	}
	if filter.Operation != "" {
		add("r.operation = ?", filter.Operation)
	}
	if filter.Method != "" {
		add("r.method = ?", filter.Method)
	}
	if filter.Scope != "" {
		add("(r.topic_id = ? OR r.conversation_id = ?)", filter.Scope, filter.Scope)
	}
	if filter.Allowed != nil {
		add("r.allowed = ?", boolInt(*filter.Allowed))
	}
	if !filter.Since.IsZero() {
		add("r.timestamp >= ?", filter.Since.UnixNano())
	}
	if !filter.Until.IsZero() {
		add("r.timestamp < ?", filter.Until.UnixNano())
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = audit.DefaultLimit
	}

	var query strings.Builder
	query.WriteString(`
		SELECT r.id, r.request_id, r.caller_id, r.caller_class, r.entry_point,
		       r.topic_id, r.conversation_id, r.credential_id, r.timestamp,
		       r.operation, r.method, r.params, r.allowed, r.deny_reason, r.matched_rules,
		       o.request_id, o.completed_at, o.duration, o.success, o.error
		FROM audit_records r
		LEFT JOIN audit_outcomes o ON o.request_id = r.request_id`)
	if len(conditions) > 0 {
		query.WriteString(" WHERE ")
		query.WriteString(strings.Join(conditions, " AND "))
	}
	query.WriteString(" ORDER BY r.timestamp DESC, r.seq DESC LIMIT ?")
	args = append(args, limit)

	var records []audit.Record
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteTransient(conn, query.String(), &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record := audit.Record{
					ID:             stmt.ColumnText(0),
					RequestID:      stmt.ColumnText(1),
					CallerID:       stmt.ColumnText(2),
					CallerClass:    stmt.ColumnText(3),
					EntryPoint:     stmt.ColumnText(4),
					TopicID:        stmt.ColumnText(5),
					ConversationID: stmt.ColumnText(6),
					CredentialID:   stmt.ColumnText(7),
					Timestamp:      fromUnixNanos(stmt.ColumnInt64(8)),
					Operation:      stmt.ColumnText(9),
					Method:         stmt.ColumnText(10),
					Params:         stmt.ColumnText(11),
					Allowed:        stmt.ColumnInt(12) != 0,
					DenyReason:     stmt.ColumnText(13),
					MatchedRules:   stmt.ColumnText(14),
				}
				if stmt.ColumnText(15) != "" {
					record.Outcome = &audit.Outcome{
						RequestID:   stmt.ColumnText(15),
						CompletedAt: fromUnixNanos(stmt.ColumnInt64(16)),
						Duration:    time.Duration(stmt.ColumnInt64(17)),
						Success:     stmt.ColumnInt(18) != 0,
						Error:       stmt.ColumnText(19),
					}
				}
				records = append(records, record)
				return nil
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}
