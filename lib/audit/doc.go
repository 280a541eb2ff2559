// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit keeps the append-only record of access decisions and
// execution outcomes.
//
// Logger buffers records in memory and writes them to a Storage in
// batches: when the buffer reaches its capacity, when the flush
// interval elapses, before every Query, and on Close. A batch that
// fails to write goes back to the front of the buffer.
//
// A decision and its outcome are separate records tied by request id.
// LogRequest appends the decision; LogResult appends a completion
// record. Storage joins them when queried, so an outcome is never lost
// because its decision was already flushed.
//
// Parameters are redacted before they are buffered: values under
// sensitive-looking keys become [REDACTED] and long strings are cut.
package audit
