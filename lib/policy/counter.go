// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"sync"
	"time"

	"github.com/bureau-foundation/warden/lib/clock"
)

// Window is the state of a fixed-window counter after a hit.
type Window struct {
	Count   int
	ResetAt time.Time
}

// Counter counts hits per key in fixed windows. A window starts on the
// first hit for a key and lasts for the given duration; the first hit
// after it ends starts a new one.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (Window, error)
}

// MemoryCounter is a process-local Counter. Expired windows are reset
// when their key is next hit; nothing sweeps them in the background.
type MemoryCounter struct {
	clock clock.Clock

	mu      sync.Mutex
	windows map[string]*Window
}

// NewMemoryCounter returns an empty MemoryCounter.
func NewMemoryCounter(c clock.Clock) *MemoryCounter {
	return &MemoryCounter{clock: c, windows: make(map[string]*Window)}
}

// Hit implements Counter.
func (m *MemoryCounter) Hit(_ context.Context, key string, window time.Duration) (Window, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.windows[key]
	if !ok || !now.Before(current.ResetAt) {
		current = &Window{ResetAt: now.Add(window)}
		m.windows[key] = current
	}
	current.Count++
	return *current, nil
}
