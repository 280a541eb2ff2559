// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/warden/cmd/warden/cli"
	"github.com/bureau-foundation/warden/lib/process"
	"github.com/bureau-foundation/warden/lib/remote"
)

func remoteCommand(globals *globalFlags) *cli.Command {
	return &cli.Command{
		Name:    "remote",
		Summary: "Exchange credentials and call tools on remote peers",
		Description: `Manage remote tool access.

A provider offers tools in a scope with "supply". A consumer asks for
access with "demand"; the provider answers with a credential, and the
consumer can then "call" the provider's tools in that scope.`,
		Subcommands: []*cli.Command{
			remoteSuppliesCommand(globals),
			remoteSupplyCommand(globals),
			remoteUnsupplyCommand(globals),
			remoteRevokeCommand(globals),
			remoteDemandCommand(globals),
			remoteCredentialCommand(globals),
			remoteCallCommand(globals),
		},
	}
}

func remoteSuppliesCommand(globals *globalFlags) *cli.Command {
	return &cli.Command{
		Name:    "supplies",
		Summary: "List this instance's remote supplies",
		Flags: func() *pflag.FlagSet {
			return globals.clientFlagSet("supplies")
		},
		Run: func(ctx context.Context, _ []string) error {
			var supplies []remote.Supply
			if err := globals.daemonCall(ctx, "remote", "supplies", nil, &supplies); err != nil {
				return err
			}
			if done, err := globals.emit(supplies); done {
				return err
			}
			table := &cli.Table{
				Headers:   []string{"SCOPE", "TOOLS", "CREATED"},
				MaxWidths: []int{40, 60},
				Styled:    cli.StdoutIsTerminal(),
			}
			for _, supply := range supplies {
				tools := "*"
				if len(supply.AllowedTools) > 0 {
					tools = strings.Join(supply.AllowedTools, ",")
				}
				table.AddRow(supply.ScopeID, tools, supply.CreatedAt.Local().Format(time.DateTime))
			}
			return table.Render(os.Stdout)
		},
	}
}

func remoteSupplyCommand(globals *globalFlags) *cli.Command {
	var tools []string
	return &cli.Command{
		Name:    "supply",
		Summary: "Offer tools to remote peers in a scope",
		Usage:   "warden remote supply <scope> [--tool name]... [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := globals.clientFlagSet("supply")
			flagSet.StringSliceVarP(&tools, "tool", "t", nil, "tool to offer; repeat or comma-separate (default every tool)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			scope, err := oneArg(args, "scope")
			if err != nil {
				return err
			}
			params := map[string]any{"scope": scope}
			if len(tools) > 0 {
				params["tools"] = tools
			}
			var supply remote.Supply
			if err := globals.daemonCall(ctx, "remote", "supply", params, &supply); err != nil {
				return err
			}
			if done, err := globals.emit(supply); done {
				return err
			}
			fmt.Printf("supplying scope %s\n", supply.ScopeID)
			return nil
		},
	}
}

func remoteUnsupplyCommand(globals *globalFlags) *cli.Command {
	return &cli.Command{
		Name:    "unsupply",
		Summary: "Withdraw a supply and revoke its credentials",
		Usage:   "warden remote unsupply <scope> [flags]",
		Flags: func() *pflag.FlagSet {
			return globals.flagSet("unsupply")
		},
		Run: func(ctx context.Context, args []string) error {
			scope, err := oneArg(args, "scope")
			if err != nil {
				return err
			}
			if err := globals.daemonCall(ctx, "remote", "unsupply", map[string]any{"scope": scope}, nil); err != nil {
				return err
			}
			fmt.Printf("withdrew supply for scope %s\n", scope)
			return nil
		},
	}
}

func remoteRevokeCommand(globals *globalFlags) *cli.Command {
	var consumer string
	return &cli.Command{
		Name:    "revoke",
		Summary: "Revoke the credential issued to a consumer",
		Usage:   "warden remote revoke <scope> --consumer <peer> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := globals.flagSet("revoke")
			flagSet.StringVar(&consumer, "consumer", "", "peer holding the credential (required)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			scope, err := oneArg(args, "scope")
			if err != nil {
				return err
			}
			if consumer == "" {
				return process.WithCode(process.ExitUsage, fmt.Errorf("--consumer is required"))
			}
			params := map[string]any{"scope": scope, "consumer": consumer}
			if err := globals.daemonCall(ctx, "remote", "revoke", params, nil); err != nil {
				return err
			}
			fmt.Printf("revoked %s in scope %s\n", consumer, scope)
			return nil
		},
	}
}

func remoteDemandCommand(globals *globalFlags) *cli.Command {
	return &cli.Command{
		Name:    "demand",
		Summary: "Ask a scope's providers for access",
		Usage:   "warden remote demand <scope> [flags]",
		Flags: func() *pflag.FlagSet {
			return globals.clientFlagSet("demand")
		},
		Run: func(ctx context.Context, args []string) error {
			scope, err := oneArg(args, "scope")
			if err != nil {
				return err
			}
			var demand remote.Demand
			if err := globals.daemonCall(ctx, "remote", "demand", map[string]any{"scope": scope}, &demand); err != nil {
				return err
			}
			if done, err := globals.emit(demand); done {
				return err
			}
			fmt.Printf("demand sent for scope %s; credentials arrive asynchronously\n", demand.ScopeID)
			return nil
		},
	}
}

func remoteCredentialCommand(globals *globalFlags) *cli.Command {
	var provider string
	return &cli.Command{
		Name:    "credential",
		Summary: "Show the credential held from a provider",
		Usage:   "warden remote credential <scope> --provider <peer> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := globals.clientFlagSet("credential")
			flagSet.StringVar(&provider, "provider", "", "peer that issued the credential (required)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			scope, err := oneArg(args, "scope")
			if err != nil {
				return err
			}
			if provider == "" {
				return process.WithCode(process.ExitUsage, fmt.Errorf("--provider is required"))
			}
			var credential remote.Credential
			params := map[string]any{"scope": scope, "provider": provider}
			if err := globals.daemonCall(ctx, "remote", "credential", params, &credential); err != nil {
				return err
			}
			if done, err := globals.emit(credential); done {
				return err
			}
			state := "live"
			if !credential.Live() {
				state = "revoked " + credential.RevokedAt.Local().Format(time.DateTime)
			}
			tools := "*"
			if len(credential.AllowedTools) > 0 {
				tools = strings.Join(credential.AllowedTools, ",")
			}
			fmt.Printf("id:       %s\n", credential.ID)
			fmt.Printf("provider: %s\n", credential.Provider)
			fmt.Printf("tools:    %s\n", tools)
			fmt.Printf("issued:   %s\n", credential.IssuedAt.Local().Format(time.DateTime))
			fmt.Printf("state:    %s\n", state)
			return nil
		},
	}
}

func remoteCallCommand(globals *globalFlags) *cli.Command {
	var provider, paramsText string
	return &cli.Command{
		Name:    "call",
		Summary: "Call a tool on a remote provider",
		Usage:   "warden remote call <scope> <tool> --provider <peer> [--params '{...}'] [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := globals.flagSet("call")
			flagSet.StringVar(&provider, "provider", "", "peer to run the tool (required)")
			flagSet.StringVarP(&paramsText, "params", "p", "", "tool arguments as a JSON object")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return process.WithCode(process.ExitUsage, fmt.Errorf("expected <scope> <tool>"))
			}
			if provider == "" {
				return process.WithCode(process.ExitUsage, fmt.Errorf("--provider is required"))
			}
			arguments, err := parseParams(paramsText)
			if err != nil {
				return process.WithCode(process.ExitUsage, err)
			}
			params := map[string]any{"scope": args[0], "tool": args[1], "provider": provider}
			if arguments != nil {
				params["arguments"] = arguments
			}
			var result remoteCallResult
			if err := globals.daemonCall(ctx, "remote", "call", params, &result); err != nil {
				return err
			}
			if err := cli.WriteJSON(os.Stdout, result); err != nil {
				return err
			}
			if !result.Success {
				return process.WithCode(process.ExitFailure, fmt.Errorf("remote tool failed (%s): %s", result.Category, result.Error))
			}
			return nil
		},
	}
}

func oneArg(args []string, name string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", process.WithCode(process.ExitUsage, fmt.Errorf("expected exactly one <%s> argument", name))
	}
	return args[0], nil
}
