// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/expr-lang/expr/vm"
	"github.com/google/uuid"

	"github.com/bureau-foundation/warden/lib/callctx"
	"github.com/bureau-foundation/warden/lib/clock"
)

// Store persists supplies. LoadRules returns them in insertion order.
type Store interface {
	StoreRule(ctx context.Context, rule Rule) error
	LoadRules(ctx context.Context) ([]Rule, error)
	DeleteRule(ctx context.Context, id string) error
}

// Recorder receives every evaluation. It must not block on I/O.
type Recorder interface {
	LogRequest(rc callctx.RequestContext, operation, method string, params map[string]any, decision Decision) string
}

// Config holds an Engine's collaborators. Store, Counter and Recorder
// are optional. The Recorder is fixed for the engine's lifetime.
type Config struct {
	Store    Store
	Counter  Counter
	Recorder Recorder
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Engine evaluates calls against the current supply set.
type Engine struct {
	store    Store
	counter  Counter
	recorder Recorder
	clock    clock.Clock
	logger   *slog.Logger

	// current is replaced wholesale on every change.
	current atomic.Pointer[ruleSet]

	// writeMu serializes changes to the set.
	writeMu sync.Mutex
	nextSeq uint64
}

type compiledRule struct {
	Rule
	seq       uint64
	condition *vm.Program
}

// ruleSet is an immutable, evaluation-ordered snapshot.
type ruleSet struct {
	rules []*compiledRule
}

// NewEngine builds an engine and loads the stored supplies.
func NewEngine(ctx context.Context, config Config) (*Engine, error) {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Counter == nil {
		config.Counter = NewMemoryCounter(config.Clock)
	}
	engine := &Engine{
		store:    config.Store,
		counter:  config.Counter,
		recorder: config.Recorder,
		clock:    config.Clock,
		logger:   config.Logger,
	}
	engine.current.Store(&ruleSet{})
	if engine.store != nil {
		if err := engine.Reload(ctx); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

// Evaluate decides whether rc may call operation.method with params.
// The decision is handed to the Recorder before it is returned.
func (e *Engine) Evaluate(ctx context.Context, rc callctx.RequestContext, operation, method string, params map[string]any) Decision {
	decision := e.evaluate(ctx, rc, operation, method, params)
	if e.recorder != nil {
		e.recorder.LogRequest(rc, operation, method, params, decision)
	}

	level := slog.LevelDebug
	if !decision.Allowed {
		level = slog.LevelInfo
	}
	e.logger.Log(ctx, level, "policy decision",
		"request", rc,
		"operation", operation,
		"method", method,
		"allowed", decision.Allowed,
		"reason", decision.Reason,
	)
	return decision
}

func (e *Engine) evaluate(ctx context.Context, rc callctx.RequestContext, operation, method string, params map[string]any) Decision {
	set := e.current.Load()
	decision := Decision{MatchedRules: []string{}}

	for _, rule := range set.rules {
		if !e.matches(rule, rc, operation, method, params) {
			continue
		}
		decision.MatchedRules = append(decision.MatchedRules, rule.ID)

		switch rule.Action {
		case ActionAllow, ActionAllowWithAudit:
			decision.Allowed = true
			decision.Audit = rule.Action == ActionAllowWithAudit
			decision.Reason = fmt.Sprintf("Allowed by supply %s", rule.Name)
			decision.FilteredParams = stripParams(params, rule.StripParams)
			return decision

		case ActionDeny:
			decision.Reason = fmt.Sprintf("Denied by supply %s", rule.Name)
			return decision

		case ActionRateLimit:
			status, ok := e.hit(ctx, rule, rc, operation, method)
			if !ok {
				continue
			}
			decision.RateLimit = status
			if status.Count > status.Limit {
				decision.Reason = fmt.Sprintf("Rate limit exceeded for supply %s", rule.Name)
				return decision
			}
		}
	}

	decision.Reason = ReasonNoMatch
	return decision
}

func (e *Engine) matches(rule *compiledRule, rc callctx.RequestContext, operation, method string, params map[string]any) bool {
	if !allowListed(rule.CallerClasses, rc.CallerClass()) {
		return false
	}
	if !allowListed(rule.EntryPoints, rc.EntryPoint()) {
		return false
	}
	if !matchAnyPattern(rule.Operations, operation) {
		return false
	}
	if !matchAnyPattern(rule.Methods, method) {
		return false
	}
	if len(rule.Scopes) > 0 && !slices.ContainsFunc(rc.ScopeIDs(), func(scope string) bool {
		return slices.Contains(rule.Scopes, scope)
	}) {
		return false
	}
	if rule.condition != nil {
		ok, err := runCondition(rule.condition, conditionEnv(rc, operation, method, params))
		if err != nil {
			e.logger.Warn("supply condition failed, treating as no match",
				"supply", rule.ID,
				"error", err,
			)
			return false
		}
		return ok
	}
	return true
}

// hit counts the call against rule's window. A counter error lets the
// call through this rule; later rules still decide.
func (e *Engine) hit(ctx context.Context, rule *compiledRule, rc callctx.RequestContext, operation, method string) (*RateLimitStatus, bool) {
	limit := rule.RateLimit
	var value string
	switch limit.Key {
	case KeyCaller:
		value = rc.CallerID()
	case KeyScope:
		value = rc.Scope()
	case KeyMethod:
		value = operation + "." + method
	case KeyOperation:
		value = operation
	}
	key := rule.ID + ":" + string(limit.Key) + ":" + value

	window, err := e.counter.Hit(ctx, key, limit.Window)
	if err != nil {
		e.logger.Error("rate-limit counter failed",
			"supply", rule.ID,
			"error", err,
		)
		return nil, false
	}

	status := &RateLimitStatus{
		RuleID:    rule.ID,
		Limit:     limit.Max,
		Count:     window.Count,
		Remaining: max(limit.Max-window.Count, 0),
		ResetAt:   window.ResetAt,
	}
	if window.Count > limit.Max {
		status.RetryAfter = max(window.ResetAt.Sub(e.clock.Now()), time.Millisecond)
	}
	return status, true
}

func stripParams(params map[string]any, keys []string) map[string]any {
	if len(keys) == 0 {
		return nil
	}
	filtered := make(map[string]any, len(params))
	for key, value := range params {
		if !slices.Contains(keys, key) {
			filtered[key] = value
		}
	}
	return filtered
}

// CreateSupply validates, persists and activates rule. A rule with an
// empty ID gets a fresh one; a rule reusing an existing ID replaces it
// in place.
func (e *Engine) CreateSupply(ctx context.Context, rule Rule) (Rule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = e.clock.Now().UTC()
	}
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	condition, err := compileCondition(rule.Condition)
	if err != nil {
		return Rule{}, fmt.Errorf("supply %q: %w", rule.Name, err)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if e.store != nil {
		if err := e.store.StoreRule(ctx, rule); err != nil {
			return Rule{}, fmt.Errorf("storing supply %q: %w", rule.ID, err)
		}
	}

	rules := slices.Clone(e.current.Load().rules)
	compiled := &compiledRule{Rule: rule, condition: condition}
	if index := indexOf(rules, rule.ID); index >= 0 {
		compiled.seq = rules[index].seq
		rules[index] = compiled
	} else {
		compiled.seq = e.nextSeq
		e.nextSeq++
		rules = append(rules, compiled)
	}
	e.publish(rules)

	e.logger.Info("supply created", "supply", rule.ID, "name", rule.Name, "priority", rule.Priority)
	return rule, nil
}

// RemoveSupply deletes the supply with id. Removing an unknown id is
// not an error.
func (e *Engine) RemoveSupply(ctx context.Context, id string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if e.store != nil {
		if err := e.store.DeleteRule(ctx, id); err != nil {
			return fmt.Errorf("deleting supply %q: %w", id, err)
		}
	}

	rules := e.current.Load().rules
	index := indexOf(rules, id)
	if index < 0 {
		return nil
	}
	e.publish(slices.Delete(slices.Clone(rules), index, index+1))
	e.logger.Info("supply removed", "supply", id)
	return nil
}

// Supplies returns the active supplies in evaluation order.
func (e *Engine) Supplies() []Rule {
	rules := e.current.Load().rules
	supplies := make([]Rule, len(rules))
	for index, rule := range rules {
		supplies[index] = rule.Rule
	}
	return supplies
}

// Reload replaces the supply set with the stored one. On any error the
// current set stays active. Changes made while it runs wait for it.
func (e *Engine) Reload(ctx context.Context) error {
	if e.store == nil {
		return nil
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	stored, err := e.store.LoadRules(ctx)
	if err != nil {
		return fmt.Errorf("loading supplies: %w", err)
	}

	rules := make([]*compiledRule, 0, len(stored))
	for index, rule := range stored {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("loading supplies: %w", err)
		}
		condition, err := compileCondition(rule.Condition)
		if err != nil {
			return fmt.Errorf("loading supplies: supply %q: %w", rule.ID, err)
		}
		rules = append(rules, &compiledRule{Rule: rule, seq: uint64(index), condition: condition})
	}
	e.nextSeq = uint64(len(rules))
	e.publish(rules)
	return nil
}

// WatchReload reloads every interval until ctx is done. Failures are
// logged and the previous set kept.
func (e *Engine) WatchReload(ctx context.Context, interval time.Duration) {
	ticker := e.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Reload(ctx); err != nil {
				e.logger.Error("policy reload failed, keeping previous supplies", "error", err)
			}
		}
	}
}

// publish sorts rules by descending priority, then insertion order,
// and makes them current. Caller holds writeMu.
func (e *Engine) publish(rules []*compiledRule) {
	slices.SortStableFunc(rules, func(a, b *compiledRule) int {
		if order := cmp.Compare(b.Priority, a.Priority); order != 0 {
			return order
		}
		return cmp.Compare(a.seq, b.seq)
	})
	e.current.Store(&ruleSet{rules: rules})
}

func indexOf(rules []*compiledRule, id string) int {
	return slices.IndexFunc(rules, func(rule *compiledRule) bool { return rule.ID == id })
}
