// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds warden's CBOR configuration.
//
// JSON is used at the edges (HTTP, the stdio tool protocol, Matrix
// events, CLI output). CBOR is used inside: the Unix socket protocol
// and the payloads exchanged through the object store. Object store
// content ids are hashes of these bytes, so the encoder uses Core
// Deterministic Encoding (sorted map keys, shortest integers, no
// indefinite lengths): two peers encoding the same ToolCall produce
// the same id.
//
// Types that travel both ways carry only `json` tags; the CBOR library
// falls back to them when no `cbor` tag is present.
package codec
