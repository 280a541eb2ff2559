// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports which warden build is running. It backs the
// version command, the status operation and the tool server's
// initialize response.
//
// Release builds set [Version], [GitCommit], [GitDirty] and [BuildTime]
// with -ldflags -X. Other builds fall back to the VCS stamp the Go
// toolchain embeds, so a plain go build still reports its commit.
package version
