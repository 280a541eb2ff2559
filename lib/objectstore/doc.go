// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package objectstore is a content-addressed blob store. Remote tool
// calls and their results travel through it: the sender stores the
// CBOR-encoded payload and puts only its ContentID in the messaging
// envelope; the receiver fetches the payload by id and can verify it
// was not altered, since the id is a BLAKE3 hash of the bytes.
//
// Blobs are compressed at rest with LZ4 or zstd when that makes them
// smaller. The id is always computed over the uncompressed bytes, so
// the same payload has the same id under any compression setting.
package objectstore
