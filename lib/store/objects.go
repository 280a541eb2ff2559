// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"context"
	"fmt"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/warden/lib/objectstore"
	"github.com/bureau-foundation/warden/lib/sqlitepool"
)

// ObjectStore implements objectstore.Store. Blobs are stored in the
// objectstore blob encoding, so each row records its own compression.
type ObjectStore struct {
	pool        *sqlitepool.Pool
	compression objectstore.Compression
}

func (s *ObjectStore) Put(ctx context.Context, data []byte) (objectstore.ContentID, error) {
	id := objectstore.Hash(data)
	blob, err := objectstore.EncodeBlob(data, s.compression)
	if err != nil {
		return objectstore.ContentID{}, fmt.Errorf("storing object %s: %w", id, err)
	}
	err = s.pool.Write(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "INSERT OR IGNORE INTO objects (id, blob) VALUES (?, ?)",
			&sqlitex.ExecOptions{Args: []any{id[:], blob}})
	})
	if err != nil {
		return objectstore.ContentID{}, fmt.Errorf("storing object %s: %w", id, err)
	}
	return id, nil
}

func (s *ObjectStore) Get(ctx context.Context, id objectstore.ContentID) ([]byte, error) {
	var (
		blob  []byte
		found bool
	)
	err := s.pool.Read(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "SELECT blob FROM objects WHERE id = ?", &sqlitex.ExecOptions{
			Args: []any{id[:]},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				blob = make([]byte, stmt.ColumnLen(0))
				stmt.ColumnBytes(0, blob)
				found = true
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("loading object %s: %w", id, err)
	}
	if !found {
		return nil, fmt.Errorf("object %s: %w", id, objectstore.ErrNotFound)
	}
	return objectstore.DecodeBlob(blob)
}
