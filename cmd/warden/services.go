// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bureau-foundation/warden/lib/audit"
	"github.com/bureau-foundation/warden/lib/callctx"
	"github.com/bureau-foundation/warden/lib/clock"
	"github.com/bureau-foundation/warden/lib/config"
	"github.com/bureau-foundation/warden/lib/objectstore"
	"github.com/bureau-foundation/warden/lib/operation"
	"github.com/bureau-foundation/warden/lib/policy"
	"github.com/bureau-foundation/warden/lib/remote"
	"github.com/bureau-foundation/warden/lib/router"
	"github.com/bureau-foundation/warden/lib/store"
	"github.com/bureau-foundation/warden/lib/toolmap"
	"github.com/bureau-foundation/warden/messaging"
)

// services is one warden instance: storage, policy, audit, the method
// registry and router, and the remote-access components.
type services struct {
	config  *config.Config
	logger  *slog.Logger
	clock   clock.Clock
	started time.Time

	db       *store.DB
	redis    *redis.Client
	policy   *policy.Engine
	audit    *audit.Logger
	registry *operation.Registry
	router   *router.Router
	tools    *toolmap.Table

	channel messaging.Channel
	matrix  *messaging.MatrixChannel

	supplies     *remote.SupplyManager
	demands      *remote.DemandManager
	remoteClient *remote.Client
	remoteServer *remote.Server
	dispatcher   *remote.Dispatcher
}

// serviceOptions replaces components newServices would otherwise build
// from config. Zero fields keep the configured behavior.
type serviceOptions struct {
	Clock clock.Clock

	// Channel carries remote envelopes instead of the configured
	// Matrix channel or a private bus.
	Channel messaging.Channel

	// Objects replaces the database object store.
	Objects objectstore.Store
}

// newServices builds every component from cfg. On error, whatever was
// already opened is closed.
func newServices(ctx context.Context, cfg *config.Config, logger *slog.Logger, options serviceOptions) (_ *services, err error) {
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	s := &services{config: cfg, logger: logger, clock: clk, started: clk.Now()}
	defer func() {
		if err != nil {
			s.close(context.Background())
		}
	}()

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	s.db, err = store.Open(ctx, store.Config{
		Path:     cfg.Database.Path,
		PoolSize: cfg.Database.PoolSize,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	s.audit, err = audit.NewLogger(audit.Config{
		Storage:         s.db.Audit(),
		Capacity:        cfg.Audit.Capacity,
		FlushInterval:   cfg.Audit.FlushInterval,
		MaxStringLength: cfg.Audit.MaxStringLength,
		Clock:           clk,
		Logger:          logger.With("component", "audit"),
	})
	if err != nil {
		return nil, err
	}

	s.policy, err = policy.NewEngine(ctx, policy.Config{
		Store:    s.db.Rules(),
		Counter:  s.rateLimitCounter(),
		Recorder: s.audit,
		Clock:    clk,
		Logger:   logger.With("component", "policy"),
	})
	if err != nil {
		return nil, err
	}

	s.registry = operation.NewRegistry()
	s.router, err = router.New(router.Config{
		Policy:   s.policy,
		Executor: s.registry,
		Audit:    s.audit,
		Clock:    clk,
		Logger:   logger.With("component", "router"),
	})
	if err != nil {
		return nil, err
	}

	if options.Channel != nil {
		s.channel = options.Channel
	} else if err := s.openChannel(); err != nil {
		return nil, err
	}

	objects := options.Objects
	if objects == nil {
		compression, err := objectstore.ParseCompression(cfg.Objects.Compression)
		if err != nil {
			return nil, err
		}
		objects = s.db.Objects(compression)
	}

	remoteLogger := logger.With("component", "remote")
	managerConfig := remote.ManagerConfig{
		Identity: cfg.Identity,
		Store:    s.db.Remote(),
		Channel:  s.channel,
		Clock:    clk,
		Logger:   remoteLogger,
	}
	if s.supplies, err = remote.NewSupplyManager(managerConfig); err != nil {
		return nil, err
	}
	if err := s.supplies.Load(ctx); err != nil {
		return nil, err
	}
	if s.demands, err = remote.NewDemandManager(managerConfig); err != nil {
		return nil, err
	}
	if err := s.demands.Load(ctx); err != nil {
		return nil, err
	}

	s.remoteClient, err = remote.NewClient(remote.ClientConfig{
		Identity:    cfg.Identity,
		Credentials: s.demands.Cache(),
		Objects:     objects,
		Channel:     s.channel,
		Timeout:     cfg.Remote.Timeout,
		Clock:       clk,
		Logger:      remoteLogger,
	})
	if err != nil {
		return nil, err
	}

	registerOperations(s)

	s.tools, err = toolmap.FromMethods(s.registry.Methods(), cfg.ToolOverrides())
	if err != nil {
		return nil, fmt.Errorf("building tool table: %w", err)
	}

	s.remoteServer, err = remote.NewServer(remote.ServerConfig{
		Identity: cfg.Identity,
		Supplies: s.supplies,
		Objects:  objects,
		Channel:  s.channel,
		Router:   s.router,
		Tools:    s.tools,
		Clock:    clk,
		Logger:   remoteLogger,
	})
	if err != nil {
		return nil, err
	}

	s.dispatcher = &remote.Dispatcher{
		Identity: cfg.Identity,
		Supplies: s.supplies,
		Demands:  s.demands,
		Client:   s.remoteClient,
		Server:   s.remoteServer,
		Logger:   remoteLogger,
	}
	if bus, ok := s.channel.(*messaging.Bus); ok {
		bus.Subscribe(s.dispatcher.Dispatch)
	}

	return s, nil
}

// rateLimitCounter returns the configured counter backend.
func (s *services) rateLimitCounter() policy.Counter {
	if s.config.RateLimit.Backend != "redis" {
		return policy.NewMemoryCounter(s.clock)
	}
	s.redis = redis.NewClient(&redis.Options{Addr: s.config.RateLimit.RedisAddr})
	return policy.NewRedisCounter(s.redis, s.config.RateLimit.Prefix, s.clock, s.logger.With("component", "ratelimit"))
}

// openChannel connects to Matrix when a homeserver is configured and
// falls back to an in-process bus otherwise.
func (s *services) openChannel() error {
	remoteConfig := s.config.Remote
	if remoteConfig.Homeserver == "" {
		s.channel = messaging.NewBus()
		return nil
	}
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: remoteConfig.Homeserver,
		AccessToken:   remoteConfig.Token,
		Logger:        s.logger.With("component", "matrix"),
	})
	if err != nil {
		return err
	}
	s.matrix, err = messaging.NewMatrixChannel(messaging.MatrixChannelConfig{
		Client:      client,
		Rooms:       remoteConfig.Rooms,
		DefaultRoom: remoteConfig.DefaultRoom,
		UserID:      remoteConfig.UserID,
		Clock:       s.clock,
		Logger:      s.logger.With("component", "matrix"),
	})
	if err != nil {
		return err
	}
	s.channel = s.matrix
	return nil
}

// ownerRuleID is the fixed id of the rule granting the daemon's own
// user full access over the socket.
const ownerRuleID = "local-owner"

// ownerRulePriority puts the owner rule ahead of seeded rules.
const ownerRulePriority = 1 << 20

// installOwnerRule grants uid full access through the socket, so a
// fresh database is administrable before any rule exists.
func (s *services) installOwnerRule(ctx context.Context, uid int) error {
	_, err := s.policy.CreateSupply(ctx, policy.Rule{
		ID:            ownerRuleID,
		Name:          "local owner",
		Priority:      ownerRulePriority,
		CallerClasses: []callctx.CallerClass{callctx.CallerUser},
		EntryPoints:   []callctx.EntryPoint{callctx.EntryIPC},
		Condition:     fmt.Sprintf("caller == %q", fmt.Sprintf("uid:%d", uid)),
		Action:        policy.ActionAllow,
	})
	if err != nil {
		return fmt.Errorf("installing owner rule: %w", err)
	}
	return nil
}

// close flushes the audit log, fails pending remote calls, and closes
// storage.
func (s *services) close(ctx context.Context) error {
	var errs []error
	if s.remoteClient != nil {
		s.remoteClient.CancelAllRequests()
	}
	if s.audit != nil {
		if err := s.audit.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flushing audit log: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing redis client: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}
	return errors.Join(errs...)
}
