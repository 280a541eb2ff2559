// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package operation is the table of callable operations. Each
// (operation, method) pair maps to one HandlerFunc registered at
// startup; lookup is a map access.
package operation

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
)

// HandlerFunc executes one method. params is never nil.
type HandlerFunc func(ctx context.Context, params map[string]any) (any, error)

// Method names one registered pair.
type Method struct {
	Operation   string `json:"operation"`
	Method      string `json:"method"`
	Description string `json:"description,omitempty"`
}

type entry struct {
	description string
	handler     HandlerFunc
}

// Registry maps (operation, method) to handlers. Safe for concurrent
// use; registration normally finishes before the first call.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Method]entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Method]entry)}
}

// Register adds a handler. Panics on an empty name or a duplicate
// pair: both are programming errors.
func (r *Registry) Register(operation, method, description string, handler HandlerFunc) {
	if operation == "" || method == "" || handler == nil {
		panic("operation.Registry: Register needs an operation, a method and a handler")
	}
	key := Method{Operation: operation, Method: method}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[key]; exists {
		panic(fmt.Sprintf("operation.Registry: duplicate handler for %s.%s", operation, method))
	}
	r.handlers[key] = entry{description: description, handler: handler}
}

// CallMethod runs the handler for operation.method. It returns an
// error wrapping ErrNotFound when the pair is not registered.
func (r *Registry) CallMethod(ctx context.Context, operation, method string, params map[string]any) (any, error) {
	r.mu.RLock()
	found, ok := r.handlers[Method{Operation: operation, Method: method}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", operation, method, ErrNotFound)
	}
	if params == nil {
		params = map[string]any{}
	}
	return found.handler(ctx, params)
}

// Has reports whether operation.method is registered.
func (r *Registry) Has(operation, method string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[Method{Operation: operation, Method: method}]
	return ok
}

// Methods lists every registered pair, sorted.
func (r *Registry) Methods() []Method {
	r.mu.RLock()
	defer r.mu.RUnlock()
	methods := make([]Method, 0, len(r.handlers))
	for key, found := range r.handlers {
		key.Description = found.description
		methods = append(methods, key)
	}
	slices.SortFunc(methods, func(a, b Method) int {
		return cmp.Or(cmp.Compare(a.Operation, b.Operation), cmp.Compare(a.Method, b.Method))
	})
	return methods
}
