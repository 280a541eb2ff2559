// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// FakeClock is a manually advanced Clock for tests. Safe for
// concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	changed *sync.Cond
	now     time.Time
	nextID  uint64
	pending []*scheduled
}

// scheduled is one registered timer or ticker.
type scheduled struct {
	id       uint64
	due      time.Time
	every    time.Duration // zero for one-shot timers
	callback func()
	ticks    chan time.Time
}

// Fake returns a FakeClock frozen at start.
func Fake(start time.Time) *FakeClock {
	clock := &FakeClock{now: start}
	clock.changed = sync.NewCond(&clock.mu)
	return clock
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc registers f to run when Advance moves past now+d. f runs on
// the goroutine that calls Advance, so it must not call Advance itself.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stop: func() bool { return false }}
	}
	entry := c.add(d, 0, f, nil)
	return &Timer{stop: func() bool { return c.remove(entry.id) }}
}

// NewTicker registers a periodic tick.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: NewTicker called with non-positive interval")
	}
	ticks := make(chan time.Time, 1)
	entry := c.add(d, d, nil, ticks)
	return &Ticker{C: ticks, stop: func() { c.remove(entry.id) }}
}

func (c *FakeClock) add(d, every time.Duration, callback func(), ticks chan time.Time) *scheduled {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	entry := &scheduled{
		id:       c.nextID,
		due:      c.now.Add(d),
		every:    every,
		callback: callback,
		ticks:    ticks,
	}
	c.pending = append(c.pending, entry)
	c.changed.Broadcast()
	return entry
}

func (c *FakeClock) remove(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	index := slices.IndexFunc(c.pending, func(entry *scheduled) bool { return entry.id == id })
	if index < 0 {
		return false
	}
	c.pending = slices.Delete(c.pending, index, index+1)
	return true
}

// Advance moves time forward by d and fires everything that came due,
// earliest first. Tickers fire once per elapsed interval; ticks that
// find the channel full are dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		entry, ok := c.popDue(target)
		if !ok {
			break
		}
		if entry.callback != nil {
			entry.callback()
			continue
		}
		select {
		case entry.ticks <- entry.due:
		default:
		}
	}

	c.mu.Lock()
	c.now = target
	c.mu.Unlock()
}

// popDue takes the earliest entry due at or before target, moving the
// clock to its deadline. Tickers are rescheduled rather than removed.
func (c *FakeClock) popDue(target time.Time) (scheduled, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	earliest := -1
	for index, entry := range c.pending {
		if entry.due.After(target) {
			continue
		}
		if earliest < 0 || entry.due.Before(c.pending[earliest].due) {
			earliest = index
		}
	}
	if earliest < 0 {
		return scheduled{}, false
	}

	entry := c.pending[earliest]
	fired := *entry
	c.now = entry.due
	if entry.every > 0 {
		entry.due = entry.due.Add(entry.every)
	} else {
		c.pending = slices.Delete(c.pending, earliest, earliest+1)
	}
	return fired, true
}

// WaitForTimers blocks until at least n timers or tickers are
// registered. Call it before Advance when another goroutine is about
// to schedule something.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}

// Pending returns the number of registered timers and tickers.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
