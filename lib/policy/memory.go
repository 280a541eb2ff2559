// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore is a Store that keeps supplies in memory.
type MemoryStore struct {
	mu    sync.Mutex
	rules []Rule

	// FailLoad makes LoadRules return this error.
	FailLoad error
}

func (m *MemoryStore) StoreRule(_ context.Context, rule Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for index := range m.rules {
		if m.rules[index].ID == rule.ID {
			m.rules[index] = rule
			return nil
		}
	}
	m.rules = append(m.rules, rule)
	return nil
}

func (m *MemoryStore) LoadRules(context.Context) ([]Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailLoad != nil {
		return nil, m.FailLoad
	}
	return slices.Clone(m.rules), nil
}

func (m *MemoryStore) DeleteRule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = slices.DeleteFunc(m.rules, func(rule Rule) bool { return rule.ID == id })
	return nil
}
