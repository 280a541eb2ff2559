// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/warden/cmd/warden/cli"
	"github.com/bureau-foundation/warden/lib/mcp"
	"github.com/bureau-foundation/warden/lib/process"
	"github.com/bureau-foundation/warden/lib/version"
)

func mcpCommand(globals *globalFlags) *cli.Command {
	var caller, topic, conversation string
	var listen bool
	return &cli.Command{
		Name:    "mcp",
		Summary: "Serve warden's tools to an agent over stdio",
		Description: `Run the daemon and serve its tools as an MCP server on stdin and
stdout. Every tool call is made as an agent caller through the mcp
entry point, scoped to --topic and --conversation. The process exits
when stdin closes.

The socket and HTTP API are only served with --listen, so an mcp
session can run next to "warden serve" on the same database.

Logs go to stderr; stdout carries only protocol messages.`,
		Usage: "warden mcp --caller <agent-id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := globals.flagSet("mcp")
			flagSet.StringVar(&caller, "caller", "", "agent identity recorded on every call (required)")
			flagSet.StringVar(&topic, "topic", "", "topic scope for every call")
			flagSet.StringVar(&conversation, "conversation", "", "conversation scope for every call")
			flagSet.BoolVar(&listen, "listen", false, "also serve the socket and HTTP API from config")
			return flagSet
		},
		Run: func(ctx context.Context, _ []string) error {
			if caller == "" {
				return process.WithCode(process.ExitUsage, errors.New("--caller is required"))
			}
			s, err := globals.openServices(ctx)
			if err != nil {
				return err
			}
			if !listen {
				s.config.Socket.Path = ""
				s.config.HTTP.Addr = ""
			}
			server, err := mcp.NewServer(mcp.Config{
				Tools:          s.tools,
				Router:         s.router,
				CallerID:       caller,
				TopicID:        topic,
				ConversationID: conversation,
				Name:           "warden",
				Version:        version.Short(),
				Logger:         s.logger.With("component", "mcp"),
			})
			if err != nil {
				s.shutdown()
				return err
			}
			return s.serveStdio(ctx, server, os.Stdin, os.Stdout)
		},
	}
}

// serveStdio runs the daemon components alongside server until input
// closes, ctx is cancelled, or a component fails.
func (s *services) serveStdio(ctx context.Context, server *mcp.Server, input io.Reader, output io.Writer) error {
	stop, failed, err := s.start(ctx)
	if err != nil {
		s.shutdown()
		return err
	}

	// Run blocks in a read, so it is raced against cancellation rather
	// than waited for.
	sessionDone := make(chan error, 1)
	go func() {
		sessionDone <- server.Run(ctx, input, output)
	}()

	select {
	case err = <-sessionDone:
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		s.logger.Info("mcp session ended")
	case <-ctx.Done():
		s.logger.Info("shutting down")
	case err = <-failed:
		s.logger.Error("component failed, shutting down", "error", err)
	}
	stop()
	return errors.Join(err, s.shutdown())
}
