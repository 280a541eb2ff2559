// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the subset of the time package warden components use.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f once d has elapsed. The returned Timer
	// cancels the call. A non-positive d runs f right away.
	AfterFunc(d time.Duration, f func()) *Timer

	// NewTicker delivers a tick on C every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Timer is a cancellable one-shot callback.
type Timer struct {
	stop func() bool
}

// Stop cancels the timer. It reports false when the callback already
// ran or the timer was stopped before.
func (t *Timer) Stop() bool { return t.stop() }

// Ticker delivers periodic ticks. C has capacity 1; ticks that find it
// full are dropped.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop ends the tick stream. C is left open.
func (t *Ticker) Stop() { t.stop() }
