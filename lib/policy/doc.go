// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy decides whether a call may proceed.
//
// Access is described by supplies: prioritized rules that each name the
// callers, entry points, operations, methods and scopes they cover and
// an action to take when a call falls inside them. Evaluation walks the
// supplies from highest to lowest priority (ties in insertion order) and
// stops at the first allow, allow-with-audit or deny. Rate-limit
// supplies count the call against a fixed window and either deny it or
// let evaluation continue; they never grant access on their own. When
// nothing grants access the call is denied with "No matching supply".
//
// The supply set is swapped atomically on every change, so evaluation
// never takes a lock and a failed reload leaves the previous set in
// place.
package policy
