// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for warden.
//
// Configuration is loaded from a single file specified by either the
// WARDEN_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no ~/.config discovery and no automatic
// file search.
//
// After the file is decoded on top of [Default], a small set of
// WARDEN_* variables override deployment values (identity, database,
// socket, HTTP address, Redis address, homeserver, Matrix token), and
// ${VAR} and ${VAR:-default} references in path and address fields are
// expanded. [Config.Validate] reports every problem at once.
//
// This package depends on no other warden packages.
package config
