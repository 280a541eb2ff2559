// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for warden binaries:
// fatal error reporting to stderr when the structured logger may not
// exist yet, and mapping an error from run() to a process exit code.
package process
