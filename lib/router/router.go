// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package router is the single path from an inbound call to its
// execution. Every entry point builds a RequestContext and hands the
// call to Router.Call, which evaluates policy, executes the method if
// allowed, and records the outcome when policy asked for an audit.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/warden/lib/callctx"
	"github.com/bureau-foundation/warden/lib/clock"
	"github.com/bureau-foundation/warden/lib/operation"
	"github.com/bureau-foundation/warden/lib/policy"
)

// Evaluator decides whether a call may proceed.
type Evaluator interface {
	Evaluate(ctx context.Context, rc callctx.RequestContext, operation, method string, params map[string]any) policy.Decision
}

// Executor runs a method.
type Executor interface {
	CallMethod(ctx context.Context, operation, method string, params map[string]any) (any, error)
}

// OutcomeRecorder records how an audited execution ended.
type OutcomeRecorder interface {
	LogResult(requestID string, duration time.Duration, execErr error)
}

// Config holds the Router's collaborators. Audit may be nil.
type Config struct {
	Policy   Evaluator
	Executor Executor
	Audit    OutcomeRecorder
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Router ties policy evaluation to execution.
type Router struct {
	policy   Evaluator
	executor Executor
	audit    OutcomeRecorder
	clock    clock.Clock
	logger   *slog.Logger
}

// New returns a Router. Policy and Executor are required.
func New(config Config) (*Router, error) {
	if config.Policy == nil {
		return nil, fmt.Errorf("router: Policy is required")
	}
	if config.Executor == nil {
		return nil, fmt.Errorf("router: Executor is required")
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Router{
		policy:   config.Policy,
		executor: config.Executor,
		audit:    config.Audit,
		clock:    config.Clock,
		logger:   config.Logger,
	}, nil
}

// CreateContext builds the RequestContext for a new inbound call,
// stamping it with the router's clock.
func (r *Router) CreateContext(options callctx.Options) (callctx.RequestContext, error) {
	if options.Timestamp.IsZero() {
		options.Timestamp = r.clock.Now().UTC()
	}
	return callctx.New(options)
}

// Call evaluates policy for rc and, if allowed, executes
// operation.method.
//
// A denial returns a *PolicyDeniedError and nothing is executed. Every
// other outcome, including a failed or panicking method, is a Result
// with a nil error.
func (r *Router) Call(ctx context.Context, rc callctx.RequestContext, op, method string, params map[string]any) (*Result, error) {
	decision := r.policy.Evaluate(ctx, rc, op, method, params)
	if !decision.Allowed {
		return nil, &PolicyDeniedError{Operation: op, Method: method, Decision: decision}
	}
	if decision.FilteredParams != nil {
		params = decision.FilteredParams
	}

	start := r.clock.Now()
	value, err := r.execute(ctx, op, method, params)
	duration := r.clock.Now().Sub(start)

	if decision.Audit && r.audit != nil {
		r.audit.LogResult(rc.RequestID(), duration, err)
	}

	result := &Result{RequestID: rc.RequestID(), Duration: duration}
	if err != nil {
		result.Error = err.Error()
		result.Category = operation.CategoryOf(err)
		r.logger.Info("call failed",
			"request", rc,
			"operation", op,
			"method", method,
			"category", result.Category,
			"error", err,
		)
		return result, nil
	}
	result.Success = true
	result.Value = value
	return result, nil
}

// execute runs the method, turning a panic into an error.
func (r *Router) execute(ctx context.Context, op, method string, params map[string]any) (value any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("method panicked",
				"operation", op,
				"method", method,
				"panic", recovered,
			)
			value, err = nil, fmt.Errorf("%s.%s panicked: %v", op, method, recovered)
		}
	}()
	return r.executor.CallMethod(ctx, op, method, params)
}
