// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/warden/lib/callctx"
	"github.com/bureau-foundation/warden/lib/clock"
	"github.com/bureau-foundation/warden/lib/objectstore"
	"github.com/bureau-foundation/warden/lib/router"
	"github.com/bureau-foundation/warden/messaging"
)

// Router is the part of *router.Router the Server uses.
type Router interface {
	CreateContext(options callctx.Options) (callctx.RequestContext, error)
	Call(ctx context.Context, rc callctx.RequestContext, operation, method string, params map[string]any) (*router.Result, error)
}

// ToolResolver maps a tool name to the operation and method it runs.
type ToolResolver interface {
	Resolve(tool string) (operation, method string, ok bool)
}

// ServerConfig holds the Server's collaborators.
type ServerConfig struct {
	Identity string
	Supplies *SupplyManager
	Objects  objectstore.Store
	Channel  messaging.Channel
	Router   Router
	Tools    ToolResolver
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Server executes Request envelopes on the provider side.
type Server struct {
	identity string
	supplies *SupplyManager
	objects  objectstore.Store
	channel  messaging.Channel
	router   Router
	tools    ToolResolver
	clock    clock.Clock
	logger   *slog.Logger
}

// NewServer creates a Server.
func NewServer(config ServerConfig) (*Server, error) {
	switch {
	case config.Identity == "":
		return nil, fmt.Errorf("remote: Identity is required")
	case config.Supplies == nil:
		return nil, fmt.Errorf("remote: Supplies is required")
	case config.Objects == nil:
		return nil, fmt.Errorf("remote: Objects is required")
	case config.Channel == nil:
		return nil, fmt.Errorf("remote: Channel is required")
	case config.Router == nil:
		return nil, fmt.Errorf("remote: Router is required")
	case config.Tools == nil:
		return nil, fmt.Errorf("remote: Tools is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Server{
		identity: config.Identity,
		supplies: config.Supplies,
		objects:  config.Objects,
		channel:  config.Channel,
		router:   config.Router,
		tools:    config.Tools,
		clock:    config.Clock,
		logger:   config.Logger,
	}, nil
}

// HandleRequest runs one request from sender and replies with a
// Response envelope. Requests addressed to another provider are
// ignored.
func (s *Server) HandleRequest(ctx context.Context, sender string, request Request) error {
	if request.Provider != s.identity {
		return nil
	}
	response := s.execute(ctx, sender, request)
	envelope, err := messaging.NewEnvelope(messaging.EnvelopeResponse, s.identity, request.ScopeID, response)
	if err != nil {
		return err
	}
	if err := s.channel.Send(ctx, request.ScopeID, envelope); err != nil {
		return fmt.Errorf("sending response for %s: %w", request.RequestID, err)
	}
	return nil
}

func (s *Server) execute(ctx context.Context, sender string, request Request) Response {
	logger := s.logger.With("request_id", request.RequestID, "caller", sender, "scope", request.ScopeID)
	fail := func(message string) Response {
		logger.Warn("remote request rejected", "reason", message)
		return Response{RequestID: request.RequestID, Error: message}
	}

	credential, ok := s.supplies.IssuedCredential(request.ScopeID, sender)
	if !ok {
		return fail(ErrNoCredential.Error())
	}

	var call ToolCall
	if err := objectstore.GetValue(ctx, s.objects, request.ToolCall, &call); err != nil {
		return fail(fmt.Sprintf("loading tool call: %v", err))
	}
	if !credential.Allows(call.Tool) {
		return fail(fmt.Sprintf("%v: %s", ErrToolNotAllowed, call.Tool))
	}
	operation, method, ok := s.tools.Resolve(call.Tool)
	if !ok {
		return fail(fmt.Sprintf("unknown tool %q", call.Tool))
	}

	rc, err := s.router.CreateContext(callctx.Options{
		CallerID:     sender,
		CallerClass:  callctx.CallerRemote,
		EntryPoint:   callctx.EntryRemoteMCP,
		TopicID:      request.ScopeID,
		CredentialID: credential.ID,
	})
	if err != nil {
		return fail(err.Error())
	}

	result, err := s.router.Call(ctx, rc, operation, method, call.Params)
	if err != nil {
		var denied *router.PolicyDeniedError
		if errors.As(err, &denied) {
			return fail(denied.Decision.Reason)
		}
		return fail(err.Error())
	}

	resultID, err := objectstore.PutValue(ctx, s.objects, ToolResult{
		Success:     result.Success,
		Value:       result.Value,
		Error:       result.Error,
		Category:    string(result.Category),
		Duration:    result.Duration,
		CompletedAt: s.clock.Now().UTC(),
	})
	if err != nil {
		return fail(fmt.Sprintf("storing tool result: %v", err))
	}
	logger.Info("remote request served", "tool", call.Tool, "success", result.Success)
	return Response{RequestID: request.RequestID, Result: resultID}
}
