// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"slices"
	"sync"
)

// MemoryStorage keeps audit records in process memory.
type MemoryStorage struct {
	mu       sync.Mutex
	records  []Record
	outcomes map[string]Outcome
	failure  error
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{outcomes: make(map[string]Outcome)}
}

// SetFailure sets or clears the error Store returns.
func (m *MemoryStorage) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = err
}

func (m *MemoryStorage) Store(_ context.Context, batch Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return m.failure
	}
	m.records = append(m.records, batch.Records...)
	for _, outcome := range batch.Outcomes {
		m.outcomes[outcome.RequestID] = outcome
	}
	return nil
}

func (m *MemoryStorage) Query(_ context.Context, filter Filter) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	var results []Record
	for _, record := range slices.Backward(m.records) {
		if !filter.matches(record) {
			continue
		}
		if outcome, ok := m.outcomes[record.RequestID]; ok {
			record.Outcome = &outcome
		}
		results = append(results, record)
	}
	slices.SortStableFunc(results, func(a, b Record) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (f Filter) matches(record Record) bool {
	switch {
	case f.RequestID != "" && record.RequestID != f.RequestID:
		return false
	case f.CallerID != "" && record.CallerID != f.CallerID:
		return false
	case f.Operation != "" && record.Operation != f.Operation:
		return false
	case f.Method != "" && record.Method != f.Method:
		return false
	case f.Scope != "" && record.TopicID != f.Scope && record.ConversationID != f.Scope:
		return false
	case f.Allowed != nil && record.Allowed != *f.Allowed:
		return false
	case !f.Since.IsZero() && record.Timestamp.Before(f.Since):
		return false
	case !f.Until.IsZero() && !record.Timestamp.Before(f.Until):
		return false
	}
	return true
}
