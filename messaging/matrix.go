// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bureau-foundation/warden/lib/clock"
)

// envelopeFilter restricts /sync to timeline events; presence and
// account data are never read.
const envelopeFilter = `{"presence":{"types":[]},"account_data":{"types":[]},"room":{"state":{"types":[]},"ephemeral":{"types":[]}}}`

// MatrixChannelConfig configures a MatrixChannel.
type MatrixChannelConfig struct {
	Client *Client

	// Rooms maps scope IDs to Matrix room IDs.
	Rooms map[string]string

	// DefaultRoom receives envelopes for scopes missing from Rooms.
	// Empty means such sends fail with ErrUnknownScope.
	DefaultRoom string

	// UserID is this instance's Matrix user. Events it sent are not
	// handed back to the listener. Resolved through WhoAmI when empty.
	UserID string

	// SyncTimeout is the /sync long-poll timeout. Default: 30s.
	SyncTimeout time.Duration

	// MaxBackoff caps the retry delay after a failed /sync. The delay
	// starts at one second and doubles. Default: 30s.
	MaxBackoff time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// MatrixChannel is a Channel that maps scopes to Matrix rooms.
type MatrixChannel struct {
	client      *Client
	rooms       map[string]string
	scopes      map[string]string
	defaultRoom string
	userID      string
	syncTimeout time.Duration
	maxBackoff  time.Duration
	clock       clock.Clock
	logger      *slog.Logger
}

// NewMatrixChannel creates a channel over config.Client.
func NewMatrixChannel(config MatrixChannelConfig) (*MatrixChannel, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("messaging: MatrixChannelConfig.Client is required")
	}
	channel := &MatrixChannel{
		client:      config.Client,
		rooms:       make(map[string]string, len(config.Rooms)),
		scopes:      make(map[string]string, len(config.Rooms)),
		defaultRoom: config.DefaultRoom,
		userID:      config.UserID,
		syncTimeout: config.SyncTimeout,
		maxBackoff:  config.MaxBackoff,
		clock:       config.Clock,
		logger:      config.Logger,
	}
	for scopeID, roomID := range config.Rooms {
		if scopeID == "" || roomID == "" {
			return nil, fmt.Errorf("messaging: room mapping %q -> %q has an empty side", scopeID, roomID)
		}
		if other, exists := channel.scopes[roomID]; exists {
			return nil, fmt.Errorf("messaging: room %q mapped to both %q and %q", roomID, other, scopeID)
		}
		channel.rooms[scopeID] = roomID
		channel.scopes[roomID] = scopeID
	}
	if channel.syncTimeout == 0 {
		channel.syncTimeout = 30 * time.Second
	}
	if channel.maxBackoff == 0 {
		channel.maxBackoff = 30 * time.Second
	}
	if channel.clock == nil {
		channel.clock = clock.Real()
	}
	if channel.logger == nil {
		channel.logger = slog.Default()
	}
	return channel, nil
}

// Send posts the envelope into the room mapped to scopeID.
func (c *MatrixChannel) Send(ctx context.Context, scopeID string, envelope Envelope) error {
	roomID, ok := c.rooms[scopeID]
	if !ok {
		roomID = c.defaultRoom
	}
	if roomID == "" {
		return fmt.Errorf("%w %q", ErrUnknownScope, scopeID)
	}
	if envelope.ScopeID == "" {
		envelope.ScopeID = scopeID
	}
	eventID, err := c.client.SendEvent(ctx, roomID, envelope.Type.EventType(), envelope)
	if err != nil {
		return err
	}
	c.logger.Debug("envelope sent",
		"type", envelope.Type,
		"scope_id", scopeID,
		"room_id", roomID,
		"event_id", eventID,
	)
	return nil
}

// Listen runs the /sync loop until ctx is cancelled, calling handler
// for each inbound envelope. The initial sync only establishes the
// position; envelopes sent before Listen started are not replayed.
func (c *MatrixChannel) Listen(ctx context.Context, handler Handler) error {
	if c.userID == "" {
		userID, err := c.client.WhoAmI(ctx)
		if err != nil {
			return err
		}
		c.userID = userID
	}

	initial, err := c.client.Sync(ctx, SyncOptions{Filter: envelopeFilter})
	if err != nil {
		return fmt.Errorf("messaging: initial sync: %w", err)
	}
	since := initial.NextBatch
	c.logger.Info("matrix listener started", "user_id", c.userID, "since", since)

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}
		response, err := c.client.Sync(ctx, SyncOptions{
			Since:      since,
			Timeout:    int(c.syncTimeout / time.Millisecond),
			SetTimeout: true,
			Filter:     envelopeFilter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if isPermanent(err) {
				return fmt.Errorf("messaging: sync: %w", err)
			}
			c.logger.Error("sync failed, retrying", "error", err, "backoff", backoff)
			if !c.sleep(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}
		backoff = time.Second
		since = response.NextBatch
		c.dispatch(ctx, response, handler)
	}
}

// dispatch hands every envelope event in response to handler. Rooms are
// visited in sorted order so delivery is deterministic.
func (c *MatrixChannel) dispatch(ctx context.Context, response *SyncResponse, handler Handler) {
	roomIDs := make([]string, 0, len(response.Rooms.Join))
	for roomID := range response.Rooms.Join {
		roomIDs = append(roomIDs, roomID)
	}
	sort.Strings(roomIDs)

	for _, roomID := range roomIDs {
		for _, event := range response.Rooms.Join[roomID].Timeline.Events {
			if event.Sender == c.userID {
				continue
			}
			envelopeType, ok := parseEventType(event.Type)
			if !ok {
				continue
			}
			var envelope Envelope
			if err := json.Unmarshal(event.Content, &envelope); err != nil {
				c.logger.Warn("dropping malformed envelope",
					"room_id", roomID,
					"event_id", event.EventID,
					"error", err,
				)
				continue
			}
			envelope.Type = envelopeType
			if envelope.ScopeID == "" {
				envelope.ScopeID = c.scopes[roomID]
			}
			handler(ctx, envelope)
		}
	}
}

// sleep waits for d on the channel's clock. It reports false when ctx
// was cancelled first.
func (c *MatrixChannel) sleep(ctx context.Context, d time.Duration) bool {
	done := make(chan struct{})
	timer := c.clock.AfterFunc(d, func() { close(done) })
	select {
	case <-done:
		return true
	case <-ctx.Done():
		timer.Stop()
		return false
	}
}
