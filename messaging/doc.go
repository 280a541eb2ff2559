// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging carries remote envelopes between warden instances.
//
// An [Envelope] is a small typed JSON message (demand, credential,
// request, response) addressed to a scope. A [Channel] delivers
// envelopes to every participant of that scope. Two implementations are
// provided:
//
//   - [MatrixChannel] maps each scope to a Matrix room. Envelopes are
//     sent as room events of type "warden.remote.<kind>" through the
//     client-server API, and [MatrixChannel.Listen] runs a /sync
//     long-poll loop that hands inbound envelopes to a [Handler].
//   - [Bus] is an in-process fan-out used by tests and single-process
//     deployments.
//
// Homeserver errors are returned as [*MatrixError] with the standard
// Matrix error code and HTTP status. [IsMatrixError] tests for a
// specific code.
package messaging
