// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/warden/cmd/warden/cli"
	"github.com/bureau-foundation/warden/lib/ipc"
	"github.com/bureau-foundation/warden/lib/process"
)

func statusCommand(globals *globalFlags) *cli.Command {
	return &cli.Command{
		Name:    "status",
		Summary: "Show the daemon's identity and runtime state",
		Flags: func() *pflag.FlagSet {
			return globals.clientFlagSet("status")
		},
		Run: func(ctx context.Context, _ []string) error {
			socketPath, err := globals.socket()
			if err != nil {
				return err
			}
			peer, err := ipc.NewClient(socketPath).Status(ctx)
			if err != nil {
				return daemonError(err)
			}
			var report statusReport
			if err := globals.daemonCall(ctx, "system", "status", nil, &report); err != nil {
				return err
			}
			if done, err := globals.emit(report); done {
				return err
			}
			fmt.Printf("identity:        %s\n", report.Identity)
			fmt.Printf("version:         %s\n", report.Version)
			fmt.Printf("you are:         %s\n", peer.Caller)
			fmt.Printf("uptime:          %s\n", report.Uptime.Round(time.Second))
			fmt.Printf("transport:       %s\n", report.Transport)
			fmt.Printf("supplies:        %d\n", report.Supplies)
			fmt.Printf("tools:           %d\n", report.Tools)
			fmt.Printf("remote supplies: %d\n", report.RemoteSupplies)
			fmt.Printf("pending calls:   %d\n", report.PendingCalls)
			fmt.Printf("buffered audit:  %d\n", report.BufferedAudit)
			return nil
		},
	}
}

func toolsCommand(globals *globalFlags) *cli.Command {
	return &cli.Command{
		Name:    "tools",
		Summary: "List tool names and the methods they call",
		Flags: func() *pflag.FlagSet {
			return globals.clientFlagSet("tools")
		},
		Run: func(ctx context.Context, _ []string) error {
			var entries []toolEntry
			if err := globals.daemonCall(ctx, "tools", "list", nil, &entries); err != nil {
				return err
			}
			if done, err := globals.emit(entries); done {
				return err
			}
			table := &cli.Table{
				Headers:   []string{"TOOL", "METHOD", "DESCRIPTION"},
				MaxWidths: []int{0, 0, 60},
				Styled:    cli.StdoutIsTerminal(),
			}
			for _, entry := range entries {
				table.AddRow(entry.Tool, entry.Operation+"."+entry.Method, entry.Description)
			}
			return table.Render(os.Stdout)
		},
	}
}

func callCommand(globals *globalFlags) *cli.Command {
	var paramsText, topic, conversation string
	return &cli.Command{
		Name:    "call",
		Summary: "Call any operation.method through the daemon",
		Description: `Call an operation.method through the daemon as the current user.

Parameters are a JSON object and may contain comments. The call is
evaluated by policy like any other; a denial exits with status 3.`,
		Usage: "warden call <operation.method> [--params '{...}'] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := globals.clientFlagSet("call")
			flagSet.StringVarP(&paramsText, "params", "p", "", "parameters as a JSON object")
			flagSet.StringVar(&topic, "topic", "", "topic scope of the call")
			flagSet.StringVar(&conversation, "conversation", "", "conversation scope of the call")
			return flagSet
		},
		Examples: []cli.Example{
			{Description: "Query recent denials", Command: `warden call audit.query -p '{"allowed": false, "limit": 5}'`},
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return process.WithCode(process.ExitUsage, fmt.Errorf("expected one operation.method argument"))
			}
			op, method, ok := strings.Cut(args[0], ".")
			if !ok || op == "" || method == "" {
				return process.WithCode(process.ExitUsage, fmt.Errorf("%q is not operation.method", args[0]))
			}
			params, err := parseParams(paramsText)
			if err != nil {
				return process.WithCode(process.ExitUsage, err)
			}

			socketPath, err := globals.socket()
			if err != nil {
				return err
			}
			result, err := ipc.NewClient(socketPath).CallMethod(ctx, ipc.CallRequest{
				Operation:      op,
				Method:         method,
				Params:         params,
				TopicID:        topic,
				ConversationID: conversation,
			})
			if err != nil {
				return daemonError(err)
			}
			if err := cli.WriteJSON(os.Stdout, result); err != nil {
				return err
			}
			if !result.Success {
				return process.WithCode(process.ExitFailure, fmt.Errorf("%s failed (%s): %s", args[0], result.Category, result.Error))
			}
			return nil
		},
	}
}

// parseParams decodes a JSON object that may contain comments and
// trailing commas.
func parseParams(text string) (map[string]any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	var params map[string]any
	if err := json.Unmarshal(jsonc.ToJSON([]byte(text)), &params); err != nil {
		return nil, fmt.Errorf("--params must be a JSON object: %w", err)
	}
	return params, nil
}
