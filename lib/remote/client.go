// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/warden/lib/clock"
	"github.com/bureau-foundation/warden/lib/objectstore"
	"github.com/bureau-foundation/warden/messaging"
)

// DefaultCallTimeout bounds how long CallTool waits for a response.
const DefaultCallTimeout = 30 * time.Second

// ClientConfig holds the Client's collaborators.
type ClientConfig struct {
	Identity    string
	Credentials *CredentialCache
	Objects     objectstore.Store
	Channel     messaging.Channel
	Timeout     time.Duration
	Clock       clock.Clock
	Logger      *slog.Logger
}

// callOutcome is what a pending call resolves with.
type callOutcome struct {
	response Response
	err      error
}

// pendingCall is one outstanding request. done has capacity one and
// receives exactly once, from whichever of response, timeout, or
// cancellation removes the entry from the table first.
type pendingCall struct {
	provider string
	done     chan callOutcome
	timer    *clock.Timer
}

// Client issues remote tool calls and correlates their responses.
type Client struct {
	identity    string
	credentials *CredentialCache
	objects     objectstore.Store
	channel     messaging.Channel
	timeout     time.Duration
	clock       clock.Clock
	logger      *slog.Logger

	mu      sync.Mutex
	pending map[string]*pendingCall
}

// NewClient creates a Client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.Identity == "" {
		return nil, fmt.Errorf("remote: Identity is required")
	}
	if config.Credentials == nil {
		return nil, fmt.Errorf("remote: Credentials is required")
	}
	if config.Objects == nil {
		return nil, fmt.Errorf("remote: Objects is required")
	}
	if config.Channel == nil {
		return nil, fmt.Errorf("remote: Channel is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultCallTimeout
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		identity:    config.Identity,
		credentials: config.Credentials,
		objects:     config.Objects,
		channel:     config.Channel,
		timeout:     config.Timeout,
		clock:       config.Clock,
		logger:      config.Logger,
		pending:     make(map[string]*pendingCall),
	}, nil
}

// CallTool runs tool on provider within scopeID and waits for its
// result. Without a live credential that allows the tool it fails
// before anything is stored or sent.
func (c *Client) CallTool(ctx context.Context, tool string, params map[string]any, scopeID, provider string) (*ToolResult, error) {
	credential, ok := c.credentials.Get(scopeID, provider)
	if !ok || !credential.Live() {
		return nil, fmt.Errorf("%w: scope %q provider %q", ErrNoCredential, scopeID, provider)
	}
	if !credential.Allows(tool) {
		return nil, fmt.Errorf("%w: %q in scope %q", ErrToolNotAllowed, tool, scopeID)
	}

	callID, err := objectstore.PutValue(ctx, c.objects, ToolCall{
		Tool:      tool,
		Params:    params,
		Caller:    c.identity,
		ScopeID:   scopeID,
		CreatedAt: c.clock.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("storing tool call: %w", err)
	}

	requestID := uuid.NewString()
	envelope, err := messaging.NewEnvelope(messaging.EnvelopeRequest, c.identity, scopeID, Request{
		RequestID: requestID,
		ScopeID:   scopeID,
		Provider:  provider,
		ToolCall:  callID,
	})
	if err != nil {
		return nil, err
	}

	call := &pendingCall{provider: provider, done: make(chan callOutcome, 1)}
	c.mu.Lock()
	c.pending[requestID] = call
	call.timer = c.clock.AfterFunc(c.timeout, func() {
		c.resolve(requestID, "", callOutcome{err: fmt.Errorf("%w after %s: %s on %q", ErrTimeout, c.timeout, tool, provider)})
	})
	c.mu.Unlock()

	if err := c.channel.Send(ctx, scopeID, envelope); err != nil {
		c.abandon(requestID)
		return nil, fmt.Errorf("sending request for %q: %w", tool, err)
	}
	c.logger.Debug("remote call sent", "request_id", requestID, "tool", tool, "scope", scopeID, "provider", provider)

	var outcome callOutcome
	select {
	case outcome = <-call.done:
	case <-ctx.Done():
		c.abandon(requestID)
		return nil, ctx.Err()
	}
	if outcome.err != nil {
		return nil, outcome.err
	}
	if outcome.response.Error != "" {
		return nil, &RemoteError{RequestID: requestID, Message: outcome.response.Error}
	}

	var result ToolResult
	if err := objectstore.GetValue(ctx, c.objects, outcome.response.Result, &result); err != nil {
		return nil, fmt.Errorf("loading result of %s: %w", requestID, err)
	}
	return &result, nil
}

// HandleResponse resolves the pending call the response answers.
// sender must be the provider the request went to. Responses for
// unknown or already finished requests, or from any other sender, are
// logged and dropped.
func (c *Client) HandleResponse(_ context.Context, sender string, response Response) {
	if !c.resolve(response.RequestID, sender, callOutcome{response: response}) {
		c.logger.Warn("unknown request", "request_id", response.RequestID, "sender", sender)
	}
}

// CancelAllRequests fails every outstanding call with ErrCancelled.
func (c *Client) CancelAllRequests() {
	c.mu.Lock()
	calls := c.pending
	c.pending = make(map[string]*pendingCall)
	c.mu.Unlock()

	for _, call := range calls {
		call.timer.Stop()
		call.done <- callOutcome{err: ErrCancelled}
	}
	if len(calls) > 0 {
		c.logger.Info("cancelled pending remote calls", "count", len(calls))
	}
}

// Pending returns the number of outstanding calls.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// resolve removes requestID from the table and completes it. A
// non-empty provider must match the one the request was sent to. It
// reports false when no such request was pending.
func (c *Client) resolve(requestID, provider string, outcome callOutcome) bool {
	c.mu.Lock()
	call, ok := c.pending[requestID]
	if ok && provider != "" && call.provider != provider {
		ok = false
	}
	if ok {
		delete(c.pending, requestID)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	call.timer.Stop()
	call.done <- outcome
	return true
}

func (c *Client) abandon(requestID string) {
	c.mu.Lock()
	call, ok := c.pending[requestID]
	delete(c.pending, requestID)
	c.mu.Unlock()
	if ok {
		call.timer.Stop()
	}
}
