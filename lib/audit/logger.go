// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/warden/lib/callctx"
	"github.com/bureau-foundation/warden/lib/clock"
	"github.com/bureau-foundation/warden/lib/policy"
)

// Config holds the parameters for a Logger.
type Config struct {
	// Storage receives flushed batches. Required.
	Storage Storage

	// Capacity is the buffer size that triggers a flush. Default 100.
	Capacity int

	// FlushInterval is the period of the background flush. Default 5s.
	FlushInterval time.Duration

	// MaxStringLength bounds each string parameter. Default 1000.
	MaxStringLength int

	// MaxPending bounds the buffer while storage is failing. Past it the
	// oldest entries are dropped. Default 100 times Capacity.
	MaxPending int

	Clock  clock.Clock
	Logger *slog.Logger
}

// Logger is the buffered audit log.
type Logger struct {
	storage         Storage
	capacity        int
	maxPending      int
	maxStringLength int
	clock           clock.Clock
	logger          *slog.Logger

	mu      sync.Mutex
	pending Batch
	dropped uint64

	// flushMu keeps flushes in order so a requeued batch stays ahead
	// of anything appended after it.
	flushMu sync.Mutex

	flushNow  chan struct{}
	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewLogger starts a Logger and its background flush loop. Close it to
// stop the loop and flush what remains.
func NewLogger(config Config) (*Logger, error) {
	if config.Storage == nil {
		return nil, fmt.Errorf("audit: Storage is required")
	}
	if config.Capacity <= 0 {
		config.Capacity = 100
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = 5 * time.Second
	}
	if config.MaxStringLength <= 0 {
		config.MaxStringLength = 1000
	}
	if config.MaxPending <= 0 {
		config.MaxPending = 100 * config.Capacity
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	l := &Logger{
		storage:         config.Storage,
		capacity:        config.Capacity,
		maxPending:      config.MaxPending,
		maxStringLength: config.MaxStringLength,
		clock:           config.Clock,
		logger:          config.Logger,
		flushNow:        make(chan struct{}, 1),
		stop:            make(chan struct{}),
		stopped:         make(chan struct{}),
	}
	ticker := config.Clock.NewTicker(config.FlushInterval)
	go l.run(ticker)
	return l, nil
}

func (l *Logger) run(ticker *clock.Ticker) {
	defer close(l.stopped)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		case <-l.flushNow:
		}
		if err := l.Flush(context.Background()); err != nil {
			l.logger.Error("audit flush failed, batch requeued", "error", err)
		}
	}
}

// LogRequest buffers the decision for one call and returns the entry
// id. It never blocks on storage.
func (l *Logger) LogRequest(rc callctx.RequestContext, operation, method string, params map[string]any, decision policy.Decision) string {
	record := Record{
		ID:             uuid.NewString(),
		RequestID:      rc.RequestID(),
		CallerID:       rc.CallerID(),
		CallerClass:    string(rc.CallerClass()),
		EntryPoint:     string(rc.EntryPoint()),
		TopicID:        rc.TopicID(),
		ConversationID: rc.ConversationID(),
		CredentialID:   rc.CredentialID(),
		Timestamp:      rc.Timestamp(),
		Operation:      operation,
		Method:         method,
		Params:         l.encodeParams(params),
		Allowed:        decision.Allowed,
		MatchedRules:   encodeStrings(decision.MatchedRules),
	}
	if !decision.Allowed {
		record.DenyReason = decision.Reason
	}

	l.mu.Lock()
	l.pending.Records = append(l.pending.Records, record)
	dropped := l.trimLocked()
	full := l.bufferedLocked() >= l.capacity
	l.mu.Unlock()

	l.reportDropped(dropped)
	if full {
		l.requestFlush()
	}
	return record.ID
}

// LogResult buffers the completion record for requestID. A nil
// execErr records success.
func (l *Logger) LogResult(requestID string, duration time.Duration, execErr error) {
	outcome := Outcome{
		RequestID:   requestID,
		CompletedAt: l.clock.Now(),
		Duration:    duration,
		Success:     execErr == nil,
	}
	if execErr != nil {
		outcome.Error = execErr.Error()
	}

	l.mu.Lock()
	l.pending.Outcomes = append(l.pending.Outcomes, outcome)
	dropped := l.trimLocked()
	full := l.bufferedLocked() >= l.capacity
	l.mu.Unlock()

	l.reportDropped(dropped)
	if full {
		l.requestFlush()
	}
}

func (l *Logger) bufferedLocked() int {
	return len(l.pending.Records) + len(l.pending.Outcomes)
}

// trimLocked drops the oldest buffered entries past maxPending, records
// first, and returns how many went.
func (l *Logger) trimLocked() int {
	excess := l.bufferedLocked() - l.maxPending
	if excess <= 0 {
		return 0
	}
	records := min(excess, len(l.pending.Records))
	l.pending.Records = l.pending.Records[records:]
	outcomes := excess - records
	l.pending.Outcomes = l.pending.Outcomes[outcomes:]
	l.dropped += uint64(excess)
	return excess
}

func (l *Logger) reportDropped(count int) {
	if count == 0 {
		return
	}
	l.logger.Error("audit buffer full, dropped oldest entries",
		"dropped", count,
		"max_pending", l.maxPending,
		"dropped_total", l.Dropped(),
	)
}

// Dropped returns how many entries were discarded because the buffer
// reached MaxPending.
func (l *Logger) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

func (l *Logger) requestFlush() {
	select {
	case l.flushNow <- struct{}{}:
	default:
	}
}

// Buffered returns the number of records waiting to be flushed.
func (l *Logger) Buffered() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bufferedLocked()
}

// Flush writes everything buffered. On failure the batch is put back
// ahead of anything buffered since, and the error returned.
func (l *Logger) Flush(ctx context.Context) error {
	l.flushMu.Lock()
	defer l.flushMu.Unlock()

	l.mu.Lock()
	batch := l.pending
	l.pending = Batch{}
	l.mu.Unlock()

	if batch.Empty() {
		return nil
	}
	if err := l.storage.Store(ctx, batch); err != nil {
		l.mu.Lock()
		l.pending = Batch{
			Records:  append(batch.Records, l.pending.Records...),
			Outcomes: append(batch.Outcomes, l.pending.Outcomes...),
		}
		dropped := l.trimLocked()
		l.mu.Unlock()
		l.reportDropped(dropped)
		return fmt.Errorf("storing audit batch of %d records and %d outcomes: %w",
			len(batch.Records), len(batch.Outcomes), err)
	}
	l.logger.Debug("audit batch flushed",
		"records", len(batch.Records),
		"outcomes", len(batch.Outcomes),
	)
	return nil
}

// Query flushes, then returns the matching entries from storage.
func (l *Logger) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	if err := l.Flush(ctx); err != nil {
		return nil, fmt.Errorf("audit query: %w", err)
	}
	records, err := l.storage.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("audit query: %w", err)
	}
	entries := make([]Entry, 0, len(records))
	for _, record := range records {
		entry, err := decodeRecord(record)
		if err != nil {
			return nil, fmt.Errorf("audit query: entry %s: %w", record.ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Close stops the background loop and flushes everything buffered.
func (l *Logger) Close(ctx context.Context) error {
	l.closeOnce.Do(func() {
		close(l.stop)
	})
	<-l.stopped
	return l.Flush(ctx)
}

func (l *Logger) encodeParams(params map[string]any) string {
	if params == nil {
		return ""
	}
	data, err := json.Marshal(Redact(params, l.maxStringLength))
	if err != nil {
		l.logger.Warn("audit parameters not serializable", "error", err)
		return `{"_unserializable":true}`
	}
	return string(data)
}

func encodeStrings(values []string) string {
	if values == nil {
		values = []string{}
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func decodeRecord(record Record) (Entry, error) {
	entry := Entry{
		ID:             record.ID,
		RequestID:      record.RequestID,
		CallerID:       record.CallerID,
		CallerClass:    callctx.CallerClass(record.CallerClass),
		EntryPoint:     callctx.EntryPoint(record.EntryPoint),
		TopicID:        record.TopicID,
		ConversationID: record.ConversationID,
		CredentialID:   record.CredentialID,
		Timestamp:      record.Timestamp,
		Operation:      record.Operation,
		Method:         record.Method,
		Allowed:        record.Allowed,
		DenyReason:     record.DenyReason,
		Outcome:        record.Outcome,
	}
	if record.Params != "" {
		if err := json.Unmarshal([]byte(record.Params), &entry.Params); err != nil {
			return Entry{}, fmt.Errorf("decoding params: %w", err)
		}
	}
	entry.MatchedRules = []string{}
	if record.MatchedRules != "" {
		if err := json.Unmarshal([]byte(record.MatchedRules), &entry.MatchedRules); err != nil {
			return Entry{}, fmt.Errorf("decoding matched rules: %w", err)
		}
	}
	return entry, nil
}
