// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Warden is a policy-enforcing call router. Every call, whether it
// arrives on the local socket, over HTTP, from an agent on stdio, or
// from a remote peer, is evaluated against the supply rules, audited,
// and only then executed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bureau-foundation/warden/cmd/warden/cli"
	"github.com/bureau-foundation/warden/lib/process"
	"github.com/bureau-foundation/warden/lib/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	if err != nil {
		process.Fatal(err)
	}
}

func run(ctx context.Context, args []string) error {
	return root().Execute(ctx, args)
}

// root builds the warden command tree.
func root() *cli.Command {
	globals := &globalFlags{}
	return &cli.Command{
		Name: "warden",
		Description: `Warden: policy-enforcing call router.

Every call is matched against supply rules, audited, and executed only
when a supply allows it. Run "warden serve" for the daemon; the other
commands talk to a running daemon over its Unix socket.`,
		Subcommands: []*cli.Command{
			serveCommand(globals),
			mcpCommand(globals),
			statusCommand(globals),
			policyCommand(globals),
			auditCommand(globals),
			toolsCommand(globals),
			callCommand(globals),
			remoteCommand(globals),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(context.Context, []string) error {
					fmt.Printf("warden %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{Description: "Start the daemon", Command: "WARDEN_CONFIG=warden.yaml warden serve"},
			{Description: "List the active supplies", Command: "warden policy list"},
			{Description: "Show the last ten denials", Command: "warden audit --denied --limit 10"},
		},
	}
}
