// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/bureau-foundation/warden/lib/clock"
	"github.com/bureau-foundation/warden/messaging"
)

// ManagerConfig holds the collaborators shared by SupplyManager and
// DemandManager. Identity is this instance's peer name.
type ManagerConfig struct {
	Identity string
	Store    Store
	Channel  messaging.Channel
	Clock    clock.Clock
	Logger   *slog.Logger
}

func (c *ManagerConfig) validate() error {
	if c.Identity == "" {
		return fmt.Errorf("remote: Identity is required")
	}
	if c.Store == nil {
		return fmt.Errorf("remote: Store is required")
	}
	if c.Channel == nil {
		return fmt.Errorf("remote: Channel is required")
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

type issuedKey struct {
	scopeID  string
	consumer string
}

// issued tracks one live credential and its delivery. A credential
// whose delivery failed is resent on the next demand.
type issued struct {
	credential Credential
	sending    bool
	delivered  bool
}

// SupplyManager is the provider side of the credential exchange.
type SupplyManager struct {
	identity string
	store    Store
	channel  messaging.Channel
	clock    clock.Clock
	logger   *slog.Logger

	mu       sync.Mutex
	supplies map[string]Supply
	issued   map[issuedKey]*issued
}

// NewSupplyManager creates a SupplyManager with no supplies. Call Load
// to restore persisted state.
func NewSupplyManager(config ManagerConfig) (*SupplyManager, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &SupplyManager{
		identity: config.Identity,
		store:    config.Store,
		channel:  config.Channel,
		clock:    config.Clock,
		logger:   config.Logger,
		supplies: make(map[string]Supply),
		issued:   make(map[issuedKey]*issued),
	}, nil
}

// Load restores this provider's supplies and live issued credentials.
// Restored credentials count as delivered.
func (m *SupplyManager) Load(ctx context.Context) error {
	supplies, err := m.store.LoadSupplies(ctx, m.identity)
	if err != nil {
		return fmt.Errorf("loading supplies: %w", err)
	}
	credentials, err := m.store.LoadCredentials(ctx)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, supply := range supplies {
		m.supplies[supply.ScopeID] = supply
	}
	restored := 0
	for _, credential := range credentials {
		if credential.Provider != m.identity || !credential.Live() {
			continue
		}
		m.issued[issuedKey{credential.ScopeID, credential.Consumer}] = &issued{credential: credential, delivered: true}
		restored++
	}
	m.logger.Info("supply state restored", "supplies", len(supplies), "credentials", restored)
	return nil
}

// CreateSupply offers access to scopeID, replacing any earlier supply
// for the scope. Credentials already issued keep their tool lists.
func (m *SupplyManager) CreateSupply(ctx context.Context, scopeID string, tools []string) (Supply, error) {
	if scopeID == "" {
		return Supply{}, fmt.Errorf("remote: scope id is required")
	}
	supply := Supply{
		ScopeID:      scopeID,
		Provider:     m.identity,
		AllowedTools: slices.Clone(tools),
		CreatedAt:    m.clock.Now().UTC(),
	}
	if err := m.store.SaveSupply(ctx, supply); err != nil {
		return Supply{}, fmt.Errorf("saving supply for %q: %w", scopeID, err)
	}

	m.mu.Lock()
	_, replaced := m.supplies[scopeID]
	m.supplies[scopeID] = supply
	m.mu.Unlock()

	m.logger.Info("supply created", "scope", scopeID, "tools", tools, "replaced", replaced)
	return supply, nil
}

// RemoveSupply withdraws the scope's supply and revokes every
// credential issued under it.
func (m *SupplyManager) RemoveSupply(ctx context.Context, scopeID string) error {
	m.mu.Lock()
	_, exists := m.supplies[scopeID]
	delete(m.supplies, scopeID)
	var consumers []string
	for key := range m.issued {
		if key.scopeID == scopeID {
			consumers = append(consumers, key.consumer)
		}
	}
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: no supply for scope %q", ErrCredentialNotFound, scopeID)
	}
	if err := m.store.DeleteSupply(ctx, scopeID, m.identity); err != nil {
		return fmt.Errorf("deleting supply for %q: %w", scopeID, err)
	}

	sort.Strings(consumers)
	for _, consumer := range consumers {
		if err := m.RevokeCredential(ctx, scopeID, consumer); err != nil {
			m.logger.Warn("revoking credential during supply removal failed",
				"scope", scopeID,
				"consumer", consumer,
				"error", err,
			)
		}
	}
	m.logger.Info("supply removed", "scope", scopeID, "revoked", len(consumers))
	return nil
}

// HandleDemand answers a demand. It returns (nil, nil) when this
// provider offers nothing in the scope or when the consumer already
// holds a delivered credential.
func (m *SupplyManager) HandleDemand(ctx context.Context, demand Demand) (*Credential, error) {
	if demand.Consumer == "" || demand.Consumer == m.identity {
		return nil, nil
	}
	key := issuedKey{demand.ScopeID, demand.Consumer}

	m.mu.Lock()
	supply, offered := m.supplies[demand.ScopeID]
	if !offered {
		m.mu.Unlock()
		m.logger.Debug("demand ignored: no supply", "scope", demand.ScopeID, "consumer", demand.Consumer)
		return nil, nil
	}
	entry, exists := m.issued[key]
	if exists && (entry.delivered || entry.sending) {
		m.mu.Unlock()
		m.logger.Debug("demand ignored: credential already issued",
			"scope", demand.ScopeID,
			"consumer", demand.Consumer,
			"credential_id", entry.credential.ID,
		)
		return nil, nil
	}
	if !exists {
		entry = &issued{credential: Credential{
			ID:           uuid.NewString(),
			ScopeID:      demand.ScopeID,
			Provider:     m.identity,
			Consumer:     demand.Consumer,
			AllowedTools: slices.Clone(supply.AllowedTools),
			IssuedAt:     m.clock.Now().UTC(),
		}}
		// Reserved before persisting so a concurrent demand for the same
		// pair sees it and backs off.
		m.issued[key] = entry
	}
	entry.sending = true
	credential := entry.credential
	m.mu.Unlock()

	if !exists {
		if err := m.store.SaveCredential(ctx, credential); err != nil {
			m.mu.Lock()
			delete(m.issued, key)
			m.mu.Unlock()
			return nil, fmt.Errorf("saving credential for %q in %q: %w", demand.Consumer, demand.ScopeID, err)
		}
	}

	deliverErr := m.deliver(ctx, credential)
	m.mu.Lock()
	entry.sending = false
	entry.delivered = deliverErr == nil
	m.mu.Unlock()
	if deliverErr != nil {
		return nil, deliverErr
	}

	m.logger.Info("credential issued",
		"scope", credential.ScopeID,
		"consumer", credential.Consumer,
		"credential_id", credential.ID,
	)
	return &credential, nil
}

// RevokeCredential revokes the credential issued to consumer in scopeID
// and notifies the consumer. Notification failures are logged.
func (m *SupplyManager) RevokeCredential(ctx context.Context, scopeID, consumer string) error {
	key := issuedKey{scopeID, consumer}
	m.mu.Lock()
	entry, ok := m.issued[key]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: scope %q consumer %q", ErrCredentialNotFound, scopeID, consumer)
	}
	delete(m.issued, key)
	m.mu.Unlock()

	credential := entry.credential
	revokedAt := m.clock.Now().UTC()
	credential.RevokedAt = &revokedAt
	if err := m.store.SaveCredential(ctx, credential); err != nil {
		return fmt.Errorf("saving revoked credential %s: %w", credential.ID, err)
	}
	if err := m.deliver(ctx, credential); err != nil {
		m.logger.Warn("revocation notice not delivered",
			"scope", scopeID,
			"consumer", consumer,
			"credential_id", credential.ID,
			"error", err,
		)
	}
	m.logger.Info("credential revoked", "scope", scopeID, "consumer", consumer, "credential_id", credential.ID)
	return nil
}

// Supplies returns the active supplies ordered by scope.
func (m *SupplyManager) Supplies() []Supply {
	m.mu.Lock()
	defer m.mu.Unlock()
	supplies := make([]Supply, 0, len(m.supplies))
	for _, supply := range m.supplies {
		supplies = append(supplies, supply)
	}
	sort.Slice(supplies, func(i, j int) bool { return supplies[i].ScopeID < supplies[j].ScopeID })
	return supplies
}

// IssuedCredential returns the live credential issued to consumer in
// scopeID.
func (m *SupplyManager) IssuedCredential(scopeID, consumer string) (Credential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.issued[issuedKey{scopeID, consumer}]
	if !ok {
		return Credential{}, false
	}
	return entry.credential, true
}

func (m *SupplyManager) deliver(ctx context.Context, credential Credential) error {
	envelope, err := messaging.NewEnvelope(messaging.EnvelopeCredential, m.identity, credential.ScopeID, credential)
	if err != nil {
		return err
	}
	if err := m.channel.Send(ctx, credential.ScopeID, envelope); err != nil {
		return fmt.Errorf("delivering credential %s to %q: %w", credential.ID, credential.Consumer, err)
	}
	return nil
}
