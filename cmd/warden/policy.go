// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/warden/cmd/warden/cli"
	"github.com/bureau-foundation/warden/lib/policy"
	"github.com/bureau-foundation/warden/lib/process"
)

func policyCommand(globals *globalFlags) *cli.Command {
	return &cli.Command{
		Name:    "policy",
		Summary: "List, add and remove supply rules",
		Subcommands: []*cli.Command{
			policyListCommand(globals),
			policyAddCommand(globals),
			policyRemoveCommand(globals),
		},
	}
}

func policyListCommand(globals *globalFlags) *cli.Command {
	return &cli.Command{
		Name:    "list",
		Summary: "List the active supplies in evaluation order",
		Flags: func() *pflag.FlagSet {
			return globals.clientFlagSet("list")
		},
		Run: func(ctx context.Context, _ []string) error {
			var rules []policy.Rule
			if err := globals.daemonCall(ctx, "policy", "list", nil, &rules); err != nil {
				return err
			}
			if done, err := globals.emit(rules); done {
				return err
			}
			return rulesTable(rules, cli.StdoutIsTerminal()).Render(os.Stdout)
		},
	}
}

// rulesTable lays out supplies one per row.
func rulesTable(rules []policy.Rule, styled bool) *cli.Table {
	table := &cli.Table{
		Headers:   []string{"ID", "NAME", "PRIORITY", "ACTION", "MATCHES"},
		MaxWidths: []int{36, 32, 0, 0, 72},
		Styled:    styled,
	}
	for _, rule := range rules {
		action := string(rule.Action)
		if rule.RateLimit != nil {
			action = fmt.Sprintf("%s %d/%s by %s", rule.Action, rule.RateLimit.Max, rule.RateLimit.Window, rule.RateLimit.Key)
		}
		style := cli.CellGood
		if rule.Action == policy.ActionDeny {
			style = cli.CellBad
		}
		table.AddStyledRow(
			[]string{rule.ID, rule.Name, strconv.Itoa(rule.Priority), action, matchSummary(rule)},
			[]cli.Cell{cli.CellMuted, cli.CellPlain, cli.CellPlain, style, cli.CellPlain},
		)
	}
	return table
}

// matchSummary describes the non-empty match criteria of rule.
func matchSummary(rule policy.Rule) string {
	var parts []string
	add := func(label string, values []string) {
		if len(values) > 0 {
			parts = append(parts, label+"="+strings.Join(values, ","))
		}
	}
	add("op", rule.Operations)
	add("method", rule.Methods)
	classes := make([]string, len(rule.CallerClasses))
	for index, class := range rule.CallerClasses {
		classes[index] = string(class)
	}
	add("class", classes)
	entries := make([]string, len(rule.EntryPoints))
	for index, entry := range rule.EntryPoints {
		entries[index] = string(entry)
	}
	add("entry", entries)
	add("scope", rule.Scopes)
	if rule.Condition != "" {
		parts = append(parts, "if "+rule.Condition)
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

func policyAddCommand(globals *globalFlags) *cli.Command {
	var file string
	return &cli.Command{
		Name:    "add",
		Summary: "Add supplies from a YAML or JSONC file",
		Description: `Add every supply in a rule file. The file has the same shape as
policy.seed_file. A supply whose id already exists is replaced.`,
		Usage: "warden policy add --file <rules.yaml> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := globals.clientFlagSet("add")
			flagSet.StringVarP(&file, "file", "f", "", "rule file (.yaml, .yml, .json, .jsonc)")
			return flagSet
		},
		Run: func(ctx context.Context, _ []string) error {
			if file == "" {
				return process.WithCode(process.ExitUsage, fmt.Errorf("--file is required"))
			}
			rules, err := policy.ReadSeedFile(file)
			if err != nil {
				return err
			}
			created := make([]policy.Rule, 0, len(rules))
			for _, rule := range rules {
				params, err := ruleParams(rule)
				if err != nil {
					return err
				}
				var stored policy.Rule
				if err := globals.daemonCall(ctx, "policy", "add", params, &stored); err != nil {
					return fmt.Errorf("adding supply %q: %w", rule.Name, err)
				}
				created = append(created, stored)
			}
			if done, err := globals.emit(created); done {
				return err
			}
			for _, rule := range created {
				fmt.Printf("added %s (%s)\n", rule.ID, rule.Name)
			}
			return nil
		},
	}
}

// ruleParams converts rule into policy.add params.
func ruleParams(rule policy.Rule) (map[string]any, error) {
	var params map[string]any
	if err := cli.DecodeValue(rule, &params); err != nil {
		return nil, fmt.Errorf("encoding supply %q: %w", rule.Name, err)
	}
	if rule.CreatedAt.IsZero() {
		delete(params, "created_at")
	}
	return params, nil
}

func policyRemoveCommand(globals *globalFlags) *cli.Command {
	return &cli.Command{
		Name:    "remove",
		Summary: "Remove supplies by id",
		Usage:   "warden policy remove <id>... [flags]",
		Flags: func() *pflag.FlagSet {
			return globals.flagSet("remove")
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return process.WithCode(process.ExitUsage, fmt.Errorf("at least one supply id is required"))
			}
			for _, id := range args {
				if err := globals.daemonCall(ctx, "policy", "remove", map[string]any{"id": id}, nil); err != nil {
					return fmt.Errorf("removing %s: %w", id, err)
				}
				fmt.Printf("removed %s\n", id)
			}
			return nil
		},
	}
}
