// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mcp serves warden's operations as MCP tools over
// newline-delimited JSON-RPC 2.0 on stdio.
//
// Tool names come from a [toolmap.Table]. Every tools/call becomes a
// router call from an agent caller through the mcp entry point, so the
// same policy that governs the socket and HTTP governs agents. Denials
// and failed executions are tool results with isError set, not
// JSON-RPC errors: the agent asked a valid question and got an answer.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bureau-foundation/warden/lib/callctx"
	"github.com/bureau-foundation/warden/lib/operation"
	"github.com/bureau-foundation/warden/lib/router"
	"github.com/bureau-foundation/warden/lib/toolmap"
)

// Router is the part of *router.Router the server needs.
type Router interface {
	CreateContext(options callctx.Options) (callctx.RequestContext, error)
	Call(ctx context.Context, rc callctx.RequestContext, op, method string, params map[string]any) (*router.Result, error)
}

// Config holds the server's collaborators and caller identity.
type Config struct {
	Tools  *toolmap.Table
	Router Router

	// CallerID identifies the agent on the other end of stdio.
	CallerID string

	// TopicID and ConversationID scope every call from this session.
	TopicID        string
	ConversationID string

	// Name and Version are reported from initialize.
	Name    string
	Version string

	Logger *slog.Logger
}

// Server is a single-session MCP server.
type Server struct {
	config      Config
	logger      *slog.Logger
	initialized bool
}

// NewServer validates config and returns a server.
func NewServer(config Config) (*Server, error) {
	if config.Tools == nil {
		return nil, fmt.Errorf("mcp: Tools is required")
	}
	if config.Router == nil {
		return nil, fmt.Errorf("mcp: Router is required")
	}
	if config.CallerID == "" {
		return nil, fmt.Errorf("mcp: CallerID is required")
	}
	if config.Name == "" {
		config.Name = "warden"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Server{config: config, logger: config.Logger}, nil
}

// Run processes requests from input and writes responses to output
// until input reaches EOF or ctx is cancelled between requests. Each
// message occupies one line.
func (s *Server) Run(ctx context.Context, input io.Reader, output io.Writer) error {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	encoder := json.NewEncoder(output)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			if writeErr := writeError(encoder, json.RawMessage("null"), codeParseError, "parse error: "+err.Error()); writeErr != nil {
				return fmt.Errorf("writing parse error response: %w", writeErr)
			}
			continue
		}

		if req.JSONRPC != "2.0" {
			if !req.isNotification() {
				if writeErr := writeError(encoder, req.ID, codeInvalidRequest, "unsupported JSON-RPC version"); writeErr != nil {
					return fmt.Errorf("writing version error response: %w", writeErr)
				}
			}
			continue
		}

		if req.isNotification() {
			continue
		}

		if err := s.dispatch(ctx, encoder, &req); err != nil {
			return err
		}
	}

	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, encoder *json.Encoder, req *request) error {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(encoder, req)
	case "ping":
		return writeResult(encoder, req.ID, map[string]any{})
	case "tools/list":
		if !s.initialized {
			return writeError(encoder, req.ID, codeInvalidRequest, "server not initialized (call initialize first)")
		}
		return s.handleToolsList(encoder, req)
	case "tools/call":
		if !s.initialized {
			return writeError(encoder, req.ID, codeInvalidRequest, "server not initialized (call initialize first)")
		}
		return s.handleToolsCall(ctx, encoder, req)
	default:
		return writeError(encoder, req.ID, codeMethodNotFound, "unknown method: "+req.Method)
	}
}

func (s *Server) handleInitialize(encoder *json.Encoder, req *request) error {
	if len(req.Params) == 0 {
		return writeError(encoder, req.ID, codeInvalidParams, "params required for initialize")
	}
	var params initializeParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return writeError(encoder, req.ID, codeInvalidParams, "invalid initialize params: "+err.Error())
	}

	s.initialized = true
	s.logger.Info("mcp session initialized",
		"client", params.ClientInfo.Name,
		"client_version", params.ClientInfo.Version,
		"caller", s.config.CallerID,
	)

	return writeResult(encoder, req.ID, initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities: serverCapabilities{
			Tools: &toolCapability{},
		},
		ServerInfo: serverInfo{
			Name:    s.config.Name,
			Version: s.config.Version,
		},
	})
}

// handleToolsList lists every tool in the table. Listing is not
// filtered by policy: a tool the caller may not use is still described,
// and calling it yields a forbidden tool error.
func (s *Server) handleToolsList(encoder *json.Encoder, req *request) error {
	entries := s.config.Tools.Entries()
	descriptions := make([]toolDescription, 0, len(entries))
	for _, entry := range entries {
		description := entry.Description
		if description == "" {
			description = fmt.Sprintf("Calls %s.%s.", entry.Operation, entry.Method)
		}
		descriptions = append(descriptions, toolDescription{
			Name:        entry.Tool,
			Title:       entry.Operation + "." + entry.Method,
			Description: description,
			InputSchema: openSchema,
		})
	}
	return writeResult(encoder, req.ID, toolsListResult{Tools: descriptions})
}

func (s *Server) handleToolsCall(ctx context.Context, encoder *json.Encoder, req *request) error {
	if len(req.Params) == 0 {
		return writeError(encoder, req.ID, codeInvalidParams, "params required for tools/call")
	}
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return writeError(encoder, req.ID, codeInvalidParams, "invalid tools/call params: "+err.Error())
	}

	op, method, ok := s.config.Tools.Resolve(params.Name)
	if !ok {
		return writeError(encoder, req.ID, codeInvalidParams, "unknown tool: "+params.Name)
	}

	var arguments map[string]any
	if len(params.Arguments) > 0 && !bytes.Equal(params.Arguments, []byte("null")) {
		if err := json.Unmarshal(params.Arguments, &arguments); err != nil {
			return writeError(encoder, req.ID, codeInvalidParams, "arguments must be a JSON object: "+err.Error())
		}
	}

	rc, err := s.config.Router.CreateContext(callctx.Options{
		CallerID:       s.config.CallerID,
		CallerClass:    callctx.CallerAgent,
		EntryPoint:     callctx.EntryMCP,
		TopicID:        s.config.TopicID,
		ConversationID: s.config.ConversationID,
	})
	if err != nil {
		return writeError(encoder, req.ID, codeInternalError, err.Error())
	}

	result, err := s.config.Router.Call(ctx, rc, op, method, arguments)
	if err != nil {
		return writeResult(encoder, req.ID, deniedResult(err))
	}
	return writeResult(encoder, req.ID, callResult(result))
}

// deniedResult reports a router refusal as a forbidden tool error.
func deniedResult(err error) toolsCallResult {
	info := &errorInfo{Category: string(operation.CategoryForbidden)}
	var denied *router.PolicyDeniedError
	if errors.As(err, &denied) {
		if retryAfter := denied.RetryAfter(); retryAfter > 0 {
			info.Retryable = true
			info.RetryAfterMS = retryAfter.Milliseconds()
		}
	} else {
		info.Category = string(operation.CategoryInternal)
	}
	return toolsCallResult{
		Content:   []contentBlock{{Type: "text", Text: err.Error()}},
		IsError:   true,
		ErrorInfo: info,
	}
}

func callResult(result *router.Result) toolsCallResult {
	if !result.Success {
		return toolsCallResult{
			Content: []contentBlock{{Type: "text", Text: result.Error}},
			IsError: true,
			ErrorInfo: &errorInfo{
				Category:  string(result.Category),
				Retryable: result.Category == operation.CategoryTransient,
			},
		}
	}

	encoded, err := json.Marshal(result.Value)
	if err != nil {
		return toolsCallResult{
			Content:   []contentBlock{{Type: "text", Text: "encoding result: " + err.Error()}},
			IsError:   true,
			ErrorInfo: &errorInfo{Category: string(operation.CategoryInternal)},
		}
	}
	success := toolsCallResult{Content: []contentBlock{{Type: "text", Text: string(encoded)}}}
	// structuredContent must be a JSON object.
	if len(encoded) > 0 && encoded[0] == '{' {
		success.StructuredContent = json.RawMessage(encoded)
	}
	return success
}

func writeResult(encoder *json.Encoder, id json.RawMessage, result any) error {
	return encoder.Encode(response{JSONRPC: "2.0", ID: id, Result: result})
}

func writeError(encoder *json.Encoder, id json.RawMessage, code int, message string) error {
	return encoder.Encode(response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}
