// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package remote implements the credential exchange that lets a peer
// call tools on another warden instance across an asynchronous
// messaging channel.
//
// A provider offers access to a scope with [SupplyManager.CreateSupply].
// A consumer asks for access with [DemandManager.CreateDemand]; the
// demand travels as an envelope, the provider's [SupplyManager] answers
// it with a [Credential], and the consumer's [DemandManager] caches the
// credential in a [CredentialCache]. Credentials are opaque grants keyed
// by (scope, provider, consumer); a revoke time invalidates one.
//
// With a credential in hand the consumer's [Client] calls tools. The
// call's [ToolCall] is stored in the content-addressed object store and
// a Request envelope carries only its content id. The provider's
// [Server] checks the credential, routes the call through the router
// under the remote entry point, stores the [ToolResult], and replies
// with a Response envelope. The client correlates responses by request
// id and gives up after a per-call timeout.
//
// [Dispatcher] connects a messaging channel's inbound envelopes to the
// managers, client, and server of one instance.
package remote
