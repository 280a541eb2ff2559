// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bureau-foundation/warden/lib/audit"
	"github.com/bureau-foundation/warden/lib/operation"
	"github.com/bureau-foundation/warden/lib/policy"
	"github.com/bureau-foundation/warden/lib/remote"
	"github.com/bureau-foundation/warden/lib/toolmap"
	"github.com/bureau-foundation/warden/lib/version"
)

// registerOperations installs warden's own methods. Every one of them
// is reached through the router, so policy governs administration the
// same way it governs any other call.
func registerOperations(s *services) {
	r := s.registry

	r.Register("policy", "list", "List the active supplies in evaluation order.",
		func(context.Context, map[string]any) (any, error) {
			return s.policy.Supplies(), nil
		})
	r.Register("policy", "add", "Create a supply, or replace the supply with the same id.",
		func(ctx context.Context, params map[string]any) (any, error) {
			var rule policy.Rule
			if err := decodeParams(params, &rule); err != nil {
				return nil, operation.Validation("invalid supply: %v", err)
			}
			created, err := s.policy.CreateSupply(ctx, rule)
			if err != nil {
				return nil, operation.Validation("%v", err)
			}
			return created, nil
		})
	r.Register("policy", "remove", "Delete a supply by id.",
		func(ctx context.Context, params map[string]any) (any, error) {
			id, err := operation.String(params, "id")
			if err != nil {
				return nil, err
			}
			if id == ownerRuleID {
				return nil, operation.Conflict("supply %q is reinstalled at every start and cannot be removed", id)
			}
			if err := s.policy.RemoveSupply(ctx, id); err != nil {
				return nil, err
			}
			return map[string]string{"removed": id}, nil
		})

	r.Register("audit", "query", "Query the audit log, newest first.",
		func(ctx context.Context, params map[string]any) (any, error) {
			filter, err := auditFilter(params)
			if err != nil {
				return nil, err
			}
			return s.audit.Query(ctx, filter)
		})

	r.Register("tools", "list", "List tool names and the methods they call.",
		func(context.Context, map[string]any) (any, error) {
			return toolEntries(s.tools), nil
		})

	r.Register("remote", "supplies", "List this instance's remote supplies.",
		func(context.Context, map[string]any) (any, error) {
			return s.supplies.Supplies(), nil
		})
	r.Register("remote", "supply", "Offer remote tool access in a scope.",
		func(ctx context.Context, params map[string]any) (any, error) {
			scope, err := operation.String(params, "scope")
			if err != nil {
				return nil, err
			}
			tools, err := operation.Strings(params, "tools")
			if err != nil {
				return nil, err
			}
			for _, tool := range tools {
				if err := toolmap.ValidateName(tool); err != nil {
					return nil, operation.Validation("%v", err)
				}
			}
			return s.supplies.CreateSupply(ctx, scope, tools)
		})
	r.Register("remote", "unsupply", "Withdraw a remote supply and revoke its credentials.",
		func(ctx context.Context, params map[string]any) (any, error) {
			scope, err := operation.String(params, "scope")
			if err != nil {
				return nil, err
			}
			if err := s.supplies.RemoveSupply(ctx, scope); err != nil {
				return nil, err
			}
			return map[string]string{"removed": scope}, nil
		})
	r.Register("remote", "revoke", "Revoke the credential issued to a consumer in a scope.",
		func(ctx context.Context, params map[string]any) (any, error) {
			scope, err := operation.String(params, "scope")
			if err != nil {
				return nil, err
			}
			consumer, err := operation.String(params, "consumer")
			if err != nil {
				return nil, err
			}
			if err := s.supplies.RevokeCredential(ctx, scope, consumer); err != nil {
				if errors.Is(err, remote.ErrCredentialNotFound) {
					return nil, operation.NotFound("no live credential for %q in scope %q", consumer, scope)
				}
				return nil, err
			}
			return map[string]string{"revoked": consumer, "scope": scope}, nil
		})
	r.Register("remote", "demand", "Ask the scope's providers for remote tool access.",
		func(ctx context.Context, params map[string]any) (any, error) {
			scope, err := operation.String(params, "scope")
			if err != nil {
				return nil, err
			}
			demand, err := s.demands.CreateDemand(ctx, scope)
			if err != nil {
				return nil, operation.Transient("sending demand for %q: %v", scope, err)
			}
			return demand, nil
		})
	r.Register("remote", "credential", "Show the credential held for a scope and provider.",
		func(_ context.Context, params map[string]any) (any, error) {
			scope, err := operation.String(params, "scope")
			if err != nil {
				return nil, err
			}
			provider, err := operation.String(params, "provider")
			if err != nil {
				return nil, err
			}
			credential, ok := s.demands.Credential(scope, provider)
			if !ok {
				return nil, operation.NotFound("no credential from %q in scope %q", provider, scope)
			}
			return credential, nil
		})
	r.Register("remote", "call", "Call a tool on a remote provider.",
		func(ctx context.Context, params map[string]any) (any, error) {
			return remoteCall(ctx, s.remoteClient, params)
		})

	r.Register("system", "status", "Report identity, version and runtime state.",
		func(context.Context, map[string]any) (any, error) {
			return s.status(), nil
		})
}

// remoteCallResult is the value of a successful remote.call.
type remoteCallResult struct {
	Success  bool          `json:"success"`
	Value    any           `json:"value,omitempty"`
	Error    string        `json:"error,omitempty"`
	Category string        `json:"category,omitempty"`
	Duration time.Duration `json:"duration"`
}

func remoteCall(ctx context.Context, client *remote.Client, params map[string]any) (any, error) {
	scope, err := operation.String(params, "scope")
	if err != nil {
		return nil, err
	}
	provider, err := operation.String(params, "provider")
	if err != nil {
		return nil, err
	}
	tool, err := operation.String(params, "tool")
	if err != nil {
		return nil, err
	}
	var arguments map[string]any
	switch value := params["arguments"].(type) {
	case nil:
	case map[string]any:
		arguments = value
	default:
		return nil, operation.Validation("parameter %q must be an object", "arguments")
	}

	result, err := client.CallTool(ctx, tool, arguments, scope, provider)
	var remoteErr *remote.RemoteError
	switch {
	case err == nil:
	case errors.Is(err, remote.ErrNoCredential), errors.Is(err, remote.ErrToolNotAllowed):
		return nil, &operation.Error{Category: operation.CategoryForbidden, Err: err}
	case errors.Is(err, remote.ErrTimeout), errors.Is(err, remote.ErrCancelled):
		return nil, operation.Transient("%v", err)
	case errors.As(err, &remoteErr):
		return nil, &operation.Error{Category: operation.CategoryForbidden, Err: err}
	default:
		return nil, err
	}
	return remoteCallResult{
		Success:  result.Success,
		Value:    result.Value,
		Error:    result.Error,
		Category: result.Category,
		Duration: result.Duration,
	}, nil
}

// statusReport is the value of system.status.
type statusReport struct {
	Identity       string        `json:"identity"`
	Version        string        `json:"version"`
	Uptime         time.Duration `json:"uptime"`
	Transport      string        `json:"transport"`
	Supplies       int           `json:"supplies"`
	Tools          int           `json:"tools"`
	RemoteSupplies int           `json:"remote_supplies"`
	PendingCalls   int           `json:"pending_remote_calls"`
	BufferedAudit  int           `json:"buffered_audit_entries"`
}

func (s *services) status() statusReport {
	transport := "bus"
	if s.matrix != nil {
		transport = "matrix"
	}
	return statusReport{
		Identity:       s.config.Identity,
		Version:        version.Short(),
		Uptime:         s.clock.Now().Sub(s.started),
		Transport:      transport,
		Supplies:       len(s.policy.Supplies()),
		Tools:          len(s.tools.Entries()),
		RemoteSupplies: len(s.supplies.Supplies()),
		PendingCalls:   s.remoteClient.Pending(),
		BufferedAudit:  s.audit.Buffered(),
	}
}

// toolEntry is one row of tools.list.
type toolEntry struct {
	Tool        string `json:"tool"`
	Operation   string `json:"operation"`
	Method      string `json:"method"`
	Description string `json:"description,omitempty"`
}

func toolEntries(table *toolmap.Table) []toolEntry {
	entries := table.Entries()
	result := make([]toolEntry, 0, len(entries))
	for _, entry := range entries {
		result = append(result, toolEntry{
			Tool:        entry.Tool,
			Operation:   entry.Operation,
			Method:      entry.Method,
			Description: entry.Description,
		})
	}
	return result
}

// auditFilter converts audit.query params into a Filter.
func auditFilter(params map[string]any) (audit.Filter, error) {
	filter := audit.Filter{
		RequestID: operation.OptionalString(params, "request_id"),
		CallerID:  operation.OptionalString(params, "caller"),
		Operation: operation.OptionalString(params, "operation"),
		Method:    operation.OptionalString(params, "method"),
		Scope:     operation.OptionalString(params, "scope"),
	}
	switch value := params["allowed"].(type) {
	case nil:
	case bool:
		filter.Allowed = &value
	default:
		return audit.Filter{}, operation.Validation("parameter %q must be a boolean", "allowed")
	}
	for _, bound := range []struct {
		key    string
		target *time.Time
	}{
		{"since", &filter.Since},
		{"until", &filter.Until},
	} {
		text := operation.OptionalString(params, bound.key)
		if text == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339Nano, text)
		if err != nil {
			return audit.Filter{}, operation.Validation("parameter %q must be an RFC 3339 time", bound.key)
		}
		*bound.target = parsed
	}
	limit, err := operation.Int(params, "limit", audit.DefaultLimit)
	if err != nil {
		return audit.Filter{}, err
	}
	if limit < 1 {
		return audit.Filter{}, operation.Validation("parameter %q must be positive", "limit")
	}
	filter.Limit = limit
	return filter, nil
}

// decodeParams converts generic params into target through JSON, the
// form every entry point's params can take.
func decodeParams(params map[string]any, target any) error {
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}
