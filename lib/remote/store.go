// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"sort"
	"sync"
)

// Store persists the remote protocol's state. Credentials are keyed by
// ID; saving an existing ID overwrites it.
type Store interface {
	SaveSupply(ctx context.Context, supply Supply) error
	DeleteSupply(ctx context.Context, scopeID, provider string) error
	LoadSupplies(ctx context.Context, provider string) ([]Supply, error)
	SaveDemand(ctx context.Context, demand Demand) error
	SaveCredential(ctx context.Context, credential Credential) error
	LoadCredentials(ctx context.Context) ([]Credential, error)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu          sync.Mutex
	supplies    map[cacheKey]Supply
	demands     []Demand
	credentials map[string]Credential
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		supplies:    make(map[cacheKey]Supply),
		credentials: make(map[string]Credential),
	}
}

func (m *MemoryStore) SaveSupply(_ context.Context, supply Supply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.supplies[cacheKey{supply.ScopeID, supply.Provider}] = supply
	return nil
}

func (m *MemoryStore) DeleteSupply(_ context.Context, scopeID, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.supplies, cacheKey{scopeID, provider})
	return nil
}

func (m *MemoryStore) LoadSupplies(_ context.Context, provider string) ([]Supply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var supplies []Supply
	for _, supply := range m.supplies {
		if supply.Provider == provider {
			supplies = append(supplies, supply)
		}
	}
	sort.Slice(supplies, func(i, j int) bool { return supplies[i].ScopeID < supplies[j].ScopeID })
	return supplies, nil
}

func (m *MemoryStore) SaveDemand(_ context.Context, demand Demand) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.demands = append(m.demands, demand)
	return nil
}

func (m *MemoryStore) SaveCredential(_ context.Context, credential Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credentials[credential.ID] = credential
	return nil
}

func (m *MemoryStore) LoadCredentials(_ context.Context) ([]Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	credentials := make([]Credential, 0, len(m.credentials))
	for _, credential := range m.credentials {
		credentials = append(credentials, credential)
	}
	sort.Slice(credentials, func(i, j int) bool { return credentials[i].IssuedAt.Before(credentials[j].IssuedAt) })
	return credentials, nil
}

// Demands returns every saved demand in order.
func (m *MemoryStore) Demands() []Demand {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Demand(nil), m.demands...)
}
