// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bureau-foundation/warden/lib/clock"
	"github.com/bureau-foundation/warden/messaging"
)

// DemandManager is the consumer side of the credential exchange.
// Credentials arrive by push through ReceiveCredential; nothing polls.
type DemandManager struct {
	identity string
	store    Store
	channel  messaging.Channel
	cache    *CredentialCache
	clock    clock.Clock
	logger   *slog.Logger

	// mu serializes ReceiveCredential's check and update.
	mu sync.Mutex
}

// NewDemandManager creates a DemandManager with an empty cache.
func NewDemandManager(config ManagerConfig) (*DemandManager, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &DemandManager{
		identity: config.Identity,
		store:    config.Store,
		channel:  config.Channel,
		cache:    NewCredentialCache(),
		clock:    config.Clock,
		logger:   config.Logger,
	}, nil
}

// Load fills the cache with persisted credentials addressed to this
// consumer, revoked ones included.
func (m *DemandManager) Load(ctx context.Context) error {
	credentials, err := m.store.LoadCredentials(ctx)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}
	restored := 0
	for _, credential := range credentials {
		if credential.Consumer != m.identity {
			continue
		}
		m.cache.Put(credential)
		restored++
	}
	m.logger.Info("demand state restored", "credentials", restored)
	return nil
}

// Cache returns the manager's credential cache.
func (m *DemandManager) Cache() *CredentialCache { return m.cache }

// CreateDemand persists a demand for scopeID and broadcasts it to the
// scope's providers.
func (m *DemandManager) CreateDemand(ctx context.Context, scopeID string) (Demand, error) {
	if scopeID == "" {
		return Demand{}, fmt.Errorf("remote: scope id is required")
	}
	demand := Demand{
		ScopeID:   scopeID,
		Consumer:  m.identity,
		CreatedAt: m.clock.Now().UTC(),
	}
	if err := m.store.SaveDemand(ctx, demand); err != nil {
		return Demand{}, fmt.Errorf("saving demand for %q: %w", scopeID, err)
	}
	envelope, err := messaging.NewEnvelope(messaging.EnvelopeDemand, m.identity, scopeID, demand)
	if err != nil {
		return Demand{}, err
	}
	if err := m.channel.Send(ctx, scopeID, envelope); err != nil {
		return Demand{}, fmt.Errorf("sending demand for %q: %w", scopeID, err)
	}
	m.logger.Info("demand created", "scope", scopeID)
	return demand, nil
}

// ReceiveCredential records a credential delivered by a provider. A
// credential carrying a revoke time revokes the cached one, and once
// revoked a credential id cannot be made live again. Credentials
// addressed to another consumer are ignored.
func (m *DemandManager) ReceiveCredential(ctx context.Context, credential Credential) error {
	if credential.Consumer != m.identity {
		m.logger.Debug("ignoring credential for another consumer",
			"consumer", credential.Consumer,
			"credential_id", credential.ID,
		)
		return nil
	}
	if credential.ScopeID == "" || credential.Provider == "" {
		return fmt.Errorf("remote: credential %s lacks scope or provider", credential.ID)
	}

	// Deliveries may repeat or arrive late. A revoked credential id
	// stays revoked, and a revocation only applies to the credential
	// currently held.
	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.cache.Get(credential.ScopeID, credential.Provider); ok {
		switch {
		case cached.ID == credential.ID && !cached.Live():
			m.logger.Debug("ignoring redelivery of a revoked credential",
				"scope", credential.ScopeID,
				"provider", credential.Provider,
				"credential_id", credential.ID,
			)
			return nil
		case cached.ID != credential.ID && !credential.Live():
			m.logger.Debug("ignoring revocation of a superseded credential",
				"scope", credential.ScopeID,
				"provider", credential.Provider,
				"credential_id", credential.ID,
			)
			return nil
		}
	}
	if err := m.store.SaveCredential(ctx, credential); err != nil {
		return fmt.Errorf("saving credential %s: %w", credential.ID, err)
	}
	m.cache.Put(credential)
	if credential.Live() {
		m.logger.Info("credential received",
			"scope", credential.ScopeID,
			"provider", credential.Provider,
			"credential_id", credential.ID,
		)
	} else {
		m.logger.Info("credential revoked by provider",
			"scope", credential.ScopeID,
			"provider", credential.Provider,
			"credential_id", credential.ID,
		)
	}
	return nil
}

// HasAccess reports whether a live credential covers scopeID and
// provider.
func (m *DemandManager) HasAccess(scopeID, provider string) bool {
	return m.cache.HasAccess(scopeID, provider)
}

// IsToolAllowed reports whether a live credential covers tool.
func (m *DemandManager) IsToolAllowed(scopeID, provider, tool string) bool {
	return m.cache.IsToolAllowed(scopeID, provider, tool)
}

// Credential returns the cached credential for scopeID and provider.
func (m *DemandManager) Credential(scopeID, provider string) (Credential, bool) {
	return m.cache.Get(scopeID, provider)
}
