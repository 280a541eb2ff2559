// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipc is warden's local Unix socket entry point.
//
// The protocol is one CBOR request and one CBOR response per
// connection. Every request carries an "action" field that selects a
// registered [ActionFunc]; responses are [Response] envelopes with an
// optional CBOR "data" payload. The caller is identified by the
// kernel's SO_PEERCRED credentials on the connection, never by a field
// in the request, so a local process cannot claim another user's
// identity.
//
// [CallAction] adapts a router into the "call" action: the peer
// becomes a user caller with an ipc entry point, and a policy denial is
// returned as a failure response with Denied set. [Client] is the
// matching client used by the warden CLI.
package ipc
