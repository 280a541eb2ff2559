// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/warden/cmd/warden/cli"
	"github.com/bureau-foundation/warden/lib/httpapi"
	"github.com/bureau-foundation/warden/lib/ipc"
	"github.com/bureau-foundation/warden/lib/version"
)

// shutdownTimeout bounds the final audit flush.
const shutdownTimeout = 10 * time.Second

func serveCommand(globals *globalFlags) *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Summary: "Run the warden daemon",
		Description: `Run the warden daemon.

Opens the database, seeds policy from policy.seed_file, and serves the
Unix socket, the HTTP API when http.addr is set, and remote-access
traffic over Matrix when remote.homeserver is set. The daemon's own
user is granted full access over the socket.`,
		Flags: func() *pflag.FlagSet {
			return globals.flagSet("serve")
		},
		Examples: []cli.Example{
			{Description: "Run with an explicit config", Command: "warden serve --config /etc/warden/warden.yaml"},
		},
		Run: func(ctx context.Context, _ []string) error {
			s, err := globals.openServices(ctx)
			if err != nil {
				return err
			}
			return s.serve(ctx)
		},
	}
}

// serve runs the daemon until ctx is cancelled or a component fails,
// then closes s.
func (s *services) serve(ctx context.Context) error {
	stop, failed, err := s.start(ctx)
	if err != nil {
		s.shutdown()
		return err
	}

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down")
	case err = <-failed:
		s.logger.Error("component failed, shutting down", "error", err)
	}
	stop()
	return errors.Join(err, s.shutdown())
}

// shutdown closes s within shutdownTimeout.
func (s *services) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.close(ctx)
}

// start prepares policy and launches the long-running components. The
// returned stop cancels them and waits for them to exit; failed
// receives the first component error.
func (s *services) start(parent context.Context) (stop func(), failed <-chan error, err error) {
	cfg := s.config

	if cfg.Policy.SeedFile != "" {
		count, err := s.policy.Seed(parent, cfg.Policy.SeedFile)
		if err != nil {
			return nil, nil, fmt.Errorf("seeding policy: %w", err)
		}
		s.logger.Info("policy seeded", "file", cfg.Policy.SeedFile, "supplies", count)
	}
	if err := s.installOwnerRule(parent, os.Getuid()); err != nil {
		return nil, nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	launch := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil && ctx.Err() == nil {
				errs <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}
	stop = func() {
		cancel()
		wg.Wait()
	}

	if cfg.Socket.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Socket.Path), 0o700); err != nil {
			cancel()
			return nil, nil, fmt.Errorf("creating socket directory: %w", err)
		}
		server := ipc.NewServer(cfg.Socket.Path, s.logger.With("component", "ipc"))
		server.Handle(ipc.ActionCall, ipc.CallAction(s.router))
		server.Handle(ipc.ActionStatus, s.statusAction)
		listener, err := server.Listen()
		if err != nil {
			cancel()
			return nil, nil, err
		}
		launch("socket server", func(ctx context.Context) error {
			return server.ServeListener(ctx, listener)
		})
	}

	if cfg.HTTP.Addr != "" {
		server, err := httpapi.NewServer(httpapi.ServerConfig{
			Address: cfg.HTTP.Addr,
			Handler: httpapi.NewHandler(s.router, s.logger.With("component", "http")),
			Logger:  s.logger.With("component", "http"),
		})
		if err != nil {
			stop()
			return nil, nil, err
		}
		launch("http server", server.Serve)
	}

	if s.matrix != nil {
		launch("matrix listener", func(ctx context.Context) error {
			return s.matrix.Listen(ctx, s.dispatcher.Dispatch)
		})
	}

	if cfg.Policy.ReloadInterval > 0 {
		launch("policy reload", func(ctx context.Context) error {
			s.policy.WatchReload(ctx, cfg.Policy.ReloadInterval)
			return nil
		})
	}

	s.logger.Info("warden started",
		"identity", cfg.Identity,
		"version", version.Short(),
		"socket", cfg.Socket.Path,
		"http", cfg.HTTP.Addr,
		"supplies", len(s.policy.Supplies()),
		"tools", len(s.tools.Entries()),
	)
	return stop, errs, nil
}

// statusAction answers the socket's status action.
func (s *services) statusAction(_ context.Context, peer ipc.Peer, _ []byte) (any, error) {
	return ipc.Status{
		Identity: s.config.Identity,
		Version:  version.Short(),
		Caller:   peer.ID(),
	}, nil
}
