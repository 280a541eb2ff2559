// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"sync"
	"time"
)

type cacheKey struct {
	scopeID  string
	provider string
}

// CredentialCache indexes the credentials a consumer holds by (scope,
// provider). A credential answers access questions only while it is
// present and has no revoke time.
type CredentialCache struct {
	mu          sync.RWMutex
	credentials map[cacheKey]Credential
}

// NewCredentialCache returns an empty cache.
func NewCredentialCache() *CredentialCache {
	return &CredentialCache{credentials: make(map[cacheKey]Credential)}
}

// Put stores credential, replacing any earlier one for its scope and
// provider.
func (c *CredentialCache) Put(credential Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credentials[cacheKey{credential.ScopeID, credential.Provider}] = credential
}

// Get returns the stored credential, live or revoked.
func (c *CredentialCache) Get(scopeID, provider string) (Credential, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	credential, ok := c.credentials[cacheKey{scopeID, provider}]
	return credential, ok
}

// HasAccess reports whether a live credential covers scope and provider.
func (c *CredentialCache) HasAccess(scopeID, provider string) bool {
	credential, ok := c.Get(scopeID, provider)
	return ok && credential.Live()
}

// IsToolAllowed reports whether a live credential covers tool.
func (c *CredentialCache) IsToolAllowed(scopeID, provider, tool string) bool {
	credential, ok := c.Get(scopeID, provider)
	return ok && credential.Live() && credential.Allows(tool)
}

// Revoke stamps the cached credential with at. It reports false when
// nothing was cached.
func (c *CredentialCache) Revoke(scopeID, provider string, at time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := cacheKey{scopeID, provider}
	credential, ok := c.credentials[key]
	if !ok {
		return false
	}
	credential.RevokedAt = &at
	c.credentials[key] = credential
	return true
}

// Remove drops the credential entirely.
func (c *CredentialCache) Remove(scopeID, provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.credentials, cacheKey{scopeID, provider})
}

// Len returns the number of cached credentials, revoked ones included.
func (c *CredentialCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.credentials)
}
