// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bureau-foundation/warden/lib/codec"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("object not found")

// Store holds blobs by content id. Put is idempotent: storing the same
// bytes twice yields the same id and one copy.
type Store interface {
	Put(ctx context.Context, data []byte) (ContentID, error)
	Get(ctx context.Context, id ContentID) ([]byte, error)
}

// PutValue stores the CBOR encoding of value.
func PutValue(ctx context.Context, store Store, value any) (ContentID, error) {
	data, err := codec.Marshal(value)
	if err != nil {
		return ContentID{}, fmt.Errorf("encoding object: %w", err)
	}
	return store.Put(ctx, data)
}

// GetValue fetches id, checks the bytes hash to id, and decodes them
// into value.
func GetValue(ctx context.Context, store Store, id ContentID, value any) error {
	data, err := store.Get(ctx, id)
	if err != nil {
		return err
	}
	if Hash(data) != id {
		return fmt.Errorf("object %s: content does not match its id", id)
	}
	if err := codec.Unmarshal(data, value); err != nil {
		return fmt.Errorf("decoding object %s: %w", id, err)
	}
	return nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	compression Compression

	mu    sync.RWMutex
	blobs map[ContentID][]byte
}

// NewMemoryStore returns an empty MemoryStore that compresses with
// compression.
func NewMemoryStore(compression Compression) *MemoryStore {
	return &MemoryStore{compression: compression, blobs: make(map[ContentID][]byte)}
}

func (m *MemoryStore) Put(_ context.Context, data []byte) (ContentID, error) {
	id := Hash(data)
	m.mu.RLock()
	_, exists := m.blobs[id]
	m.mu.RUnlock()
	if exists {
		return id, nil
	}
	blob, err := EncodeBlob(data, m.compression)
	if err != nil {
		return ContentID{}, fmt.Errorf("storing object %s: %w", id, err)
	}
	m.mu.Lock()
	m.blobs[id] = blob
	m.mu.Unlock()
	return id, nil
}

func (m *MemoryStore) Get(_ context.Context, id ContentID) ([]byte, error) {
	m.mu.RLock()
	blob, ok := m.blobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object %s: %w", id, ErrNotFound)
	}
	return DecodeBlob(blob)
}

// Len returns the number of stored blobs.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}
