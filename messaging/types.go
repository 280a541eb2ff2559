// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import "encoding/json"

// SendEventResponse is the response from PUT /rooms/{roomId}/send.
type SendEventResponse struct {
	EventID string `json:"event_id"`
}

// WhoAmIResponse is the response from GET /account/whoami.
type WhoAmIResponse struct {
	UserID string `json:"user_id"`
}

// SyncOptions controls a single /sync request.
type SyncOptions struct {
	Since      string // next_batch token from previous sync; empty for initial sync
	Timeout    int    // long-poll timeout in milliseconds
	SetTimeout bool   // if true, send the timeout parameter
	Filter     string // filter ID or inline JSON filter
}

// SyncResponse is the subset of the /sync response warden reads.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection contains per-room sync data for joined rooms.
type RoomsSection struct {
	Join map[string]JoinedRoom `json:"join,omitempty"`
}

// JoinedRoom contains sync data for a room the user has joined.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
}

// TimelineSection holds the timeline events for a room.
type TimelineSection struct {
	Events    []Event `json:"events"`
	Limited   bool    `json:"limited,omitempty"`
	PrevBatch string  `json:"prev_batch,omitempty"`
}

// Event is a Matrix room event. Content is kept raw so envelope
// payloads decode into their own types.
type Event struct {
	EventID        string          `json:"event_id"`
	Type           string          `json:"type"`
	Sender         string          `json:"sender"`
	OriginServerTS int64           `json:"origin_server_ts"`
	Content        json.RawMessage `json:"content"`
}
