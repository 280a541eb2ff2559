// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command framework for the warden binary: a tree
// of [Command] values dispatched by name, pflag-based flag parsing
// with typo suggestions, and the output helpers commands share (JSON
// and aligned tables).
package cli
