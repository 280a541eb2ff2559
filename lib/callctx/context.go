// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package callctx describes an inbound call: who is calling, through
// which entry point, in which scope, and when. A RequestContext is
// built once when a call enters the process and then passed by value;
// nothing mutates it afterwards.
package callctx

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// CallerClass is the kind of principal making a call.
type CallerClass string

const (
	// CallerUser is a human operator.
	CallerUser CallerClass = "user"
	// CallerAgent is an automated agent, typically a local tool client.
	CallerAgent CallerClass = "agent"
	// CallerRemote is a peer reached through the messaging channel.
	CallerRemote CallerClass = "remote"
	// CallerSystem is the process calling itself.
	CallerSystem CallerClass = "system"
)

// Valid reports whether c is one of the known classes.
func (c CallerClass) Valid() bool {
	switch c {
	case CallerUser, CallerAgent, CallerRemote, CallerSystem:
		return true
	}
	return false
}

// EntryPoint is the channel through which a call arrived.
type EntryPoint string

const (
	EntryIPC       EntryPoint = "ipc"
	EntryMCP       EntryPoint = "mcp"
	EntryRemoteMCP EntryPoint = "remote-mcp"
	EntryHTTP      EntryPoint = "http"
	EntryInternal  EntryPoint = "internal"
)

// Valid reports whether e is one of the known entry points.
func (e EntryPoint) Valid() bool {
	switch e {
	case EntryIPC, EntryMCP, EntryRemoteMCP, EntryHTTP, EntryInternal:
		return true
	}
	return false
}

// RequestContext is the immutable description of one call. Fields are
// unexported so the value cannot be edited after New.
type RequestContext struct {
	callerID       string
	callerClass    CallerClass
	entryPoint     EntryPoint
	topicID        string
	conversationID string
	timestamp      time.Time
	requestID      string
	credentialID   string
}

// Options are the inputs to New. RequestID is generated when empty.
type Options struct {
	CallerID       string
	CallerClass    CallerClass
	EntryPoint     EntryPoint
	TopicID        string
	ConversationID string
	CredentialID   string
	RequestID      string
	Timestamp      time.Time
}

// New validates options and builds a RequestContext.
func New(options Options) (RequestContext, error) {
	if options.CallerID == "" {
		return RequestContext{}, fmt.Errorf("caller id is required")
	}
	if !options.CallerClass.Valid() {
		return RequestContext{}, fmt.Errorf("unknown caller class %q", options.CallerClass)
	}
	if !options.EntryPoint.Valid() {
		return RequestContext{}, fmt.Errorf("unknown entry point %q", options.EntryPoint)
	}
	if options.Timestamp.IsZero() {
		return RequestContext{}, fmt.Errorf("timestamp is required")
	}
	requestID := options.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	return RequestContext{
		callerID:       options.CallerID,
		callerClass:    options.CallerClass,
		entryPoint:     options.EntryPoint,
		topicID:        options.TopicID,
		conversationID: options.ConversationID,
		timestamp:      options.Timestamp,
		requestID:      requestID,
		credentialID:   options.CredentialID,
	}, nil
}

func (r RequestContext) CallerID() string         { return r.callerID }
func (r RequestContext) CallerClass() CallerClass { return r.callerClass }
func (r RequestContext) EntryPoint() EntryPoint   { return r.entryPoint }
func (r RequestContext) TopicID() string          { return r.topicID }
func (r RequestContext) ConversationID() string   { return r.conversationID }
func (r RequestContext) Timestamp() time.Time     { return r.timestamp }
func (r RequestContext) RequestID() string        { return r.requestID }
func (r RequestContext) CredentialID() string     { return r.credentialID }

// ScopeIDs returns the scope identifiers the call carries, topic first.
func (r RequestContext) ScopeIDs() []string {
	var scopes []string
	if r.topicID != "" {
		scopes = append(scopes, r.topicID)
	}
	if r.conversationID != "" {
		scopes = append(scopes, r.conversationID)
	}
	return scopes
}

// Scope returns the primary scope: the topic when present, else the
// conversation, else "".
func (r RequestContext) Scope() string {
	if r.topicID != "" {
		return r.topicID
	}
	return r.conversationID
}

// LogValue implements slog.LogValuer.
func (r RequestContext) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("request_id", r.requestID),
		slog.String("caller", r.callerID),
		slog.String("class", string(r.callerClass)),
		slog.String("entry", string(r.entryPoint)),
	}
	if scope := r.Scope(); scope != "" {
		attrs = append(attrs, slog.String("scope", scope))
	}
	return slog.GroupValue(attrs...)
}
