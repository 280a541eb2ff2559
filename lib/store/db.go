// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package store persists warden's state in one SQLite database:
// policy supplies, audit records and their outcomes, the remote
// protocol's supplies, demands and credentials, and content-addressed
// objects.
//
// Each concern has its own type implementing the matching package's
// storage interface ([RuleStore] for policy.Store, [AuditStore] for
// audit.Storage, [RemoteStore] for remote.Store, [ObjectStore] for
// objectstore.Store). All share the connection pool of one [DB].
// Timestamps are stored as Unix nanoseconds.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/warden/lib/objectstore"
	"github.com/bureau-foundation/warden/lib/sqlitepool"
)

// migrations is append-only; see sqlitepool.Config.Migrations.
var migrations = []string{`
	CREATE TABLE rules (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT NOT NULL UNIQUE,
		priority   INTEGER NOT NULL,
		body       TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE audit_records (
		seq             INTEGER PRIMARY KEY AUTOINCREMENT,
		id              TEXT NOT NULL UNIQUE,
		request_id      TEXT NOT NULL,
		caller_id       TEXT NOT NULL,
		caller_class    TEXT NOT NULL,
		entry_point     TEXT NOT NULL,
		topic_id        TEXT NOT NULL DEFAULT '',
		conversation_id TEXT NOT NULL DEFAULT '',
		credential_id   TEXT NOT NULL DEFAULT '',
		timestamp       INTEGER NOT NULL,
		operation       TEXT NOT NULL,
		method          TEXT NOT NULL,
		params          TEXT NOT NULL,
		allowed         INTEGER NOT NULL,
		deny_reason     TEXT NOT NULL DEFAULT '',
		matched_rules   TEXT NOT NULL
	);
	CREATE INDEX idx_audit_records_time ON audit_records(timestamp);
	CREATE INDEX idx_audit_records_request ON audit_records(request_id);
	CREATE INDEX idx_audit_records_caller ON audit_records(caller_id, timestamp);
	CREATE INDEX idx_audit_records_operation ON audit_records(operation, method, timestamp);

	CREATE TABLE audit_outcomes (
		request_id   TEXT PRIMARY KEY,
		completed_at INTEGER NOT NULL,
		duration     INTEGER NOT NULL,
		success      INTEGER NOT NULL,
		error        TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE remote_supplies (
		scope_id      TEXT NOT NULL,
		provider      TEXT NOT NULL,
		allowed_tools TEXT NOT NULL,
		created_at    INTEGER NOT NULL,
		PRIMARY KEY (scope_id, provider)
	);

	CREATE TABLE remote_demands (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		scope_id   TEXT NOT NULL,
		consumer   TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE remote_credentials (
		id            TEXT PRIMARY KEY,
		scope_id      TEXT NOT NULL,
		provider      TEXT NOT NULL,
		consumer      TEXT NOT NULL,
		allowed_tools TEXT NOT NULL,
		issued_at     INTEGER NOT NULL,
		revoked_at    INTEGER
	);
	CREATE INDEX idx_remote_credentials_key ON remote_credentials(scope_id, provider, consumer);

	CREATE TABLE objects (
		id   BLOB PRIMARY KEY,
		blob BLOB NOT NULL
	);
`}

// Config holds the parameters for opening the database.
type Config struct {
	Path     string
	PoolSize int
	Logger   *slog.Logger
}

// DB is warden's database.
type DB struct {
	pool   *sqlitepool.Pool
	logger *slog.Logger
}

// Open opens or creates the database at cfg.Path and migrates it.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
		Path:       cfg.Path,
		PoolSize:   cfg.PoolSize,
		Migrations: migrations,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &DB{pool: pool, logger: logger}, nil
}

// Close closes the connection pool.
func (db *DB) Close() error { return db.pool.Close() }

// Rules returns the policy supply store.
func (db *DB) Rules() *RuleStore { return &RuleStore{pool: db.pool} }

// Audit returns the audit storage.
func (db *DB) Audit() *AuditStore { return &AuditStore{pool: db.pool} }

// Remote returns the remote protocol store.
func (db *DB) Remote() *RemoteStore { return &RemoteStore{pool: db.pool} }

// Objects returns the object store, compressing new blobs with
// compression.
func (db *DB) Objects(compression objectstore.Compression) *ObjectStore {
	return &ObjectStore{pool: db.pool, compression: compression}
}

func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNanos(nanos int64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
