// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/warden/lib/config"
	"github.com/bureau-foundation/warden/lib/logging"
)

// globalFlags are accepted by every command that loads config or
// dials the daemon.
type globalFlags struct {
	configPath string
	socketPath string
	logLevel   string
	logFormat  string
	jsonOutput bool
}

// flagSet returns a fresh flag set carrying the global flags.
func (g *globalFlags) flagSet(name string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.StringVarP(&g.configPath, "config", "c", "", "config file (default $WARDEN_CONFIG)")
	flagSet.StringVar(&g.socketPath, "socket", "", "daemon socket path (default from config or $WARDEN_SOCKET)")
	flagSet.StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flagSet.StringVar(&g.logFormat, "log-format", logging.FormatAuto, "log format: auto, text, json")
	return flagSet
}

// clientFlagSet adds --json to the global flags.
func (g *globalFlags) clientFlagSet(name string) *pflag.FlagSet {
	flagSet := g.flagSet(name)
	flagSet.BoolVar(&g.jsonOutput, "json", false, "output as JSON")
	return flagSet
}

func (g *globalFlags) loadConfig() (*config.Config, error) {
	if g.configPath != "" {
		return config.LoadFile(g.configPath)
	}
	return config.Load()
}

// logger builds the process logger on stderr and installs it as the
// slog default.
func (g *globalFlags) logger() (*slog.Logger, error) {
	if _, _, err := logging.Parse(g.logLevel, g.logFormat); err != nil {
		return nil, err
	}
	logger := logging.New(os.Stderr, g.logLevel, g.logFormat)
	slog.SetDefault(logger)
	return logger, nil
}

// openServices loads config and builds a warden instance.
func (g *globalFlags) openServices(ctx context.Context) (*services, error) {
	logger, err := g.logger()
	if err != nil {
		return nil, err
	}
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	if g.socketPath != "" {
		cfg.Socket.Path = g.socketPath
	}
	return newServices(ctx, cfg, logger.With("identity", cfg.Identity), serviceOptions{})
}

// socket resolves the daemon socket for client commands: --socket,
// then the config file when one is named, then the environment default.
func (g *globalFlags) socket() (string, error) {
	if g.socketPath != "" {
		return g.socketPath, nil
	}
	if g.configPath != "" || os.Getenv("WARDEN_CONFIG") != "" {
		cfg, err := g.loadConfig()
		if err != nil {
			return "", err
		}
		return cfg.Socket.Path, nil
	}
	return config.SocketPath(), nil
}
