// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens warden's SQLite database.
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool with fixed pragmas
// (WAL journal, NORMAL synchronous, a 5 second busy timeout, an 8 MB
// page cache per connection, in-memory temp tables) and a small
// migration runner keyed on PRAGMA user_version.
//
// Callers write SQL directly with sqlitex.Execute. [Pool.Read] lends a
// connection for queries; [Pool.Write] wraps a function in an IMMEDIATE
// transaction so concurrent writers queue on the busy timeout instead
// of failing mid-transaction.
//
//	pool, err := sqlitepool.Open(ctx, sqlitepool.Config{
//	    Path:       "/var/lib/warden/warden.db",
//	    Migrations: []string{schemaV1},
//	    Logger:     logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
package sqlitepool
