// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source for every component that schedules
// work: the audit flush ticker, rate-limit windows, policy reload, and
// per-call remote timeouts.
//
// Components hold a Clock instead of calling the time package. Real
// returns the wall clock; Fake returns a clock that only moves when a
// test calls Advance, firing due timers synchronously:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	client := remote.NewClient(remote.ClientConfig{Clock: c, ...})
//	go client.CallTool(ctx, ...)
//	c.WaitForTimers(1)          // the call registered its timeout
//	c.Advance(30 * time.Second) // the timeout fires
package clock
