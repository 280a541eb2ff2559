// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/warden/cmd/warden/cli"
	"github.com/bureau-foundation/warden/lib/audit"
	"github.com/bureau-foundation/warden/lib/process"
)

// auditFlags are the filters accepted by the audit command.
type auditFlags struct {
	requestID string
	caller    string
	operation string
	method    string
	scope     string
	allowed   bool
	denied    bool
	since     string
	until     string
	limit     int
}

func auditCommand(globals *globalFlags) *cli.Command {
	var flags auditFlags
	return &cli.Command{
		Name:    "audit",
		Summary: "Query the audit log",
		Description: `Show audited calls, newest first. Buffered entries are flushed
before the query, so the latest calls are always included.

--since and --until take an RFC 3339 time or a duration before now
("90m", "24h").`,
		Flags: func() *pflag.FlagSet {
			flagSet := globals.clientFlagSet("audit")
			flagSet.StringVar(&flags.requestID, "request", "", "only this request id")
			flagSet.StringVar(&flags.caller, "caller", "", "only this caller id")
			flagSet.StringVar(&flags.operation, "operation", "", "only this operation")
			flagSet.StringVar(&flags.method, "method", "", "only this method")
			flagSet.StringVar(&flags.scope, "scope", "", "only calls in this topic or conversation")
			flagSet.BoolVar(&flags.allowed, "allowed", false, "only allowed calls")
			flagSet.BoolVar(&flags.denied, "denied", false, "only denied calls")
			flagSet.StringVar(&flags.since, "since", "", "only calls at or after this time")
			flagSet.StringVar(&flags.until, "until", "", "only calls at or before this time")
			flagSet.IntVarP(&flags.limit, "limit", "n", audit.DefaultLimit, "maximum entries")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Denials in the last hour", Command: "warden audit --denied --since 1h"},
			{Description: "Everything one agent did in a topic", Command: "warden audit --caller agent-7 --scope topic-42"},
		},
		Run: func(ctx context.Context, _ []string) error {
			params, err := flags.params(time.Now())
			if err != nil {
				return process.WithCode(process.ExitUsage, err)
			}
			var entries []audit.Entry
			if err := globals.daemonCall(ctx, "audit", "query", params, &entries); err != nil {
				return err
			}
			if done, err := globals.emit(entries); done {
				return err
			}
			return auditTable(entries, cli.StdoutIsTerminal()).Render(os.Stdout)
		},
	}
}

// params converts the flags into audit.query params.
func (f *auditFlags) params(now time.Time) (map[string]any, error) {
	if f.allowed && f.denied {
		return nil, fmt.Errorf("--allowed and --denied are mutually exclusive")
	}
	if f.limit < 1 {
		return nil, fmt.Errorf("--limit must be positive")
	}
	params := map[string]any{"limit": f.limit}
	for key, value := range map[string]string{
		"request_id": f.requestID,
		"caller":     f.caller,
		"operation":  f.operation,
		"method":     f.method,
		"scope":      f.scope,
	} {
		if value != "" {
			params[key] = value
		}
	}
	switch {
	case f.allowed:
		params["allowed"] = true
	case f.denied:
		params["allowed"] = false
	}
	for key, value := range map[string]string{"since": f.since, "until": f.until} {
		if value == "" {
			continue
		}
		bound, err := parseTimeBound(value, now)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", key, err)
		}
		params[key] = bound.UTC().Format(time.RFC3339Nano)
	}
	return params, nil
}

// parseTimeBound accepts an RFC 3339 time or a duration before now.
func parseTimeBound(value string, now time.Time) (time.Time, error) {
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed, nil
	}
	ago, err := time.ParseDuration(value)
	if err != nil || ago < 0 {
		return time.Time{}, fmt.Errorf("%q is neither an RFC 3339 time nor a positive duration", value)
	}
	return now.Add(-ago), nil
}

// auditTable lays out entries one per row.
func auditTable(entries []audit.Entry, styled bool) *cli.Table {
	table := &cli.Table{
		Headers:   []string{"TIME", "CALLER", "ENTRY", "CALL", "DECISION", "OUTCOME", "PARAMS"},
		MaxWidths: []int{0, 24, 0, 32, 40, 32, 48},
		Styled:    styled,
	}
	for _, entry := range entries {
		decision := "allowed"
		decisionStyle := cli.CellGood
		if !entry.Allowed {
			decision = "denied: " + entry.DenyReason
			decisionStyle = cli.CellBad
		}

		outcome := "-"
		outcomeStyle := cli.CellMuted
		if entry.Outcome != nil {
			if entry.Outcome.Success {
				outcome = "ok " + entry.Outcome.Duration.Round(time.Microsecond).String()
				outcomeStyle = cli.CellPlain
			} else {
				outcome = "failed: " + entry.Outcome.Error
				outcomeStyle = cli.CellBad
			}
		}

		params := ""
		if len(entry.Params) > 0 {
			if encoded, err := json.Marshal(entry.Params); err == nil {
				params = string(encoded)
			}
		}

		table.AddStyledRow(
			[]string{
				entry.Timestamp.Local().Format(time.DateTime),
				entry.CallerID,
				string(entry.EntryPoint),
				entry.Operation + "." + entry.Method,
				decision,
				outcome,
				params,
			},
			[]cli.Cell{cli.CellMuted, cli.CellPlain, cli.CellPlain, cli.CellPlain, decisionStyle, outcomeStyle, cli.CellMuted},
		)
	}
	return table
}
