// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// SeedFile is the on-disk form of a supply list:
//
//	supplies:
//	  - id: operators
//	    name: operators over ipc
//	    priority: 900
//	    caller_classes: [user]
//	    entry_points: [ipc]
//	    action: allow
//
// Files ending in .json or .jsonc are read as JSON with comments.
type SeedFile struct {
	Supplies []Rule `yaml:"supplies"`
}

// ReadSeedFile parses path and validates every supply in it.
func ReadSeedFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading supply file: %w", err)
	}
	switch filepath.Ext(path) {
	case ".json", ".jsonc":
		// JSON is valid YAML, so one decoder handles both once the
		// comments are gone.
		data = jsonc.ToJSON(data)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing supply file %s: %w", path, err)
	}
	for index, rule := range seed.Supplies {
		if rule.ID == "" {
			return nil, fmt.Errorf("supply file %s: entry %d has no id", path, index)
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("supply file %s: %w", path, err)
		}
	}
	return seed.Supplies, nil
}

// Seed creates every supply in path. Supplies keep their ids, so
// seeding the same file twice leaves one copy of each.
func (e *Engine) Seed(ctx context.Context, path string) (int, error) {
	rules, err := ReadSeedFile(path)
	if err != nil {
		return 0, err
	}
	for _, rule := range rules {
		if _, err := e.CreateSupply(ctx, rule); err != nil {
			return 0, err
		}
	}
	return len(rules), nil
}
