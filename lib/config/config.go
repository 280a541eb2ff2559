// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for a warden process.
type Config struct {
	// Environment identifies the deployment type. Production rejects
	// settings that only make sense on a developer machine.
	Environment Environment `yaml:"environment"`

	// Identity is this warden's principal name. It is the sender on
	// every outbound envelope and the provider or consumer recorded in
	// credentials.
	Identity string `yaml:"identity"`

	Database  DatabaseConfig  `yaml:"database"`
	Socket    SocketConfig    `yaml:"socket"`
	HTTP      HTTPConfig      `yaml:"http"`
	Audit     AuditConfig     `yaml:"audit"`
	Policy    PolicyConfig    `yaml:"policy"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Remote    RemoteConfig    `yaml:"remote"`
	Objects   ObjectsConfig   `yaml:"objects"`

	// Tools maps tool names to "operation.method" targets. Methods not
	// named here get a derived tool name.
	Tools map[string]string `yaml:"tools"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	// Path is the database file. ":memory:" is not supported; every
	// connection in the pool must see the same data.
	Path string `yaml:"path"`

	// PoolSize is the number of pooled connections.
	PoolSize int `yaml:"pool_size"`
}

// SocketConfig configures the local Unix socket entry point.
type SocketConfig struct {
	// Path is the socket path. Empty disables the socket.
	Path string `yaml:"path"`
}

// HTTPConfig configures the HTTP entry point.
type HTTPConfig struct {
	// Addr is the listen address. Empty disables HTTP.
	Addr string `yaml:"addr"`
}

// AuditConfig configures the buffered audit logger.
type AuditConfig struct {
	// Capacity is the number of buffered entries that triggers a flush.
	Capacity int `yaml:"capacity"`

	// FlushInterval is the periodic flush interval.
	FlushInterval time.Duration `yaml:"flush_interval"`

	// MaxStringLength truncates long parameter strings in records.
	MaxStringLength int `yaml:"max_string_length"`
}

// PolicyConfig configures the policy engine.
type PolicyConfig struct {
	// SeedFile is a YAML or JSONC rule file loaded at startup.
	SeedFile string `yaml:"seed_file"`

	// ReloadInterval is how often rules are reloaded from the
	// database. Zero disables periodic reloads.
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// RateLimitConfig selects the rate-limit counter backend.
type RateLimitConfig struct {
	// Backend is "memory" or "redis".
	Backend string `yaml:"backend"`

	// RedisAddr is the Redis address when Backend is "redis".
	RedisAddr string `yaml:"redis_addr"`

	// Prefix namespaces counter keys in Redis.
	Prefix string `yaml:"prefix"`
}

// RemoteConfig configures remote credential exchange and calls.
type RemoteConfig struct {
	// Timeout bounds each outbound remote tool call.
	Timeout time.Duration `yaml:"timeout"`

	// Homeserver is the Matrix homeserver URL. Empty keeps remote
	// traffic on an in-process bus.
	Homeserver string `yaml:"homeserver"`

	// Token is the Matrix access token. Usually given as ${VAR}.
	Token string `yaml:"token"`

	// UserID is the Matrix user id. Resolved with whoami when empty.
	UserID string `yaml:"user_id"`

	// Rooms maps scope ids to Matrix room ids.
	Rooms map[string]string `yaml:"rooms"`

	// DefaultRoom carries scopes with no entry in Rooms.
	DefaultRoom string `yaml:"default_room"`
}

// ObjectsConfig configures the content-addressed object store.
type ObjectsConfig struct {
	// Compression is "none", "lz4", or "zstd".
	Compression string `yaml:"compression"`
}

// Default returns a configuration with development defaults.
func Default() *Config {
	return &Config{
		Environment: Development,
		Database: DatabaseConfig{
			Path:     "${HOME}/.local/state/warden/warden.db",
			PoolSize: 4,
		},
		Socket: SocketConfig{
			Path: "${XDG_RUNTIME_DIR:-/tmp}/warden.sock",
		},
		Audit: AuditConfig{
			Capacity:        100,
			FlushInterval:   5 * time.Second,
			MaxStringLength: 1024,
		},
		Policy: PolicyConfig{
			ReloadInterval: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Backend: "memory",
			Prefix:  "warden:ratelimit:",
		},
		Remote: RemoteConfig{
			Timeout: 30 * time.Second,
		},
		Objects: ObjectsConfig{
			Compression: "zstd",
		},
	}
}

// Load loads configuration from the WARDEN_CONFIG environment variable.
// There is no search path: if WARDEN_CONFIG is unset this fails.
func Load() (*Config, error) {
	configPath := os.Getenv("WARDEN_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("WARDEN_CONFIG environment variable not set; " +
			"set it to the path of your warden.yaml config file, or use --config flag")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path on top of [Default], applies
// WARDEN_* environment overrides, expands ${VAR} references, and
// validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	cfg.applyEnvironment()
	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// applyEnvironment overrides file values with WARDEN_* variables. Only
// deployment-specific values are overridable; policy stays in the file.
func (c *Config) applyEnvironment() {
	overrides := []struct {
		name   string
		target *string
	}{
		{"WARDEN_IDENTITY", &c.Identity},
		{"WARDEN_DATABASE", &c.Database.Path},
		{"WARDEN_SOCKET", &c.Socket.Path},
		{"WARDEN_HTTP_ADDR", &c.HTTP.Addr},
		{"WARDEN_REDIS_ADDR", &c.RateLimit.RedisAddr},
		{"WARDEN_HOMESERVER", &c.Remote.Homeserver},
		{"WARDEN_MATRIX_TOKEN", &c.Remote.Token},
	}
	for _, override := range overrides {
		if value := os.Getenv(override.name); value != "" {
			*override.target = value
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME":            os.Getenv("HOME"),
		"WARDEN_IDENTITY": c.Identity,
	}

	c.Database.Path = expandVars(c.Database.Path, vars)
	c.Socket.Path = expandVars(c.Socket.Path, vars)
	c.HTTP.Addr = expandVars(c.HTTP.Addr, vars)
	c.Policy.SeedFile = expandVars(c.Policy.SeedFile, vars)
	c.RateLimit.RedisAddr = expandVars(c.RateLimit.RedisAddr, vars)
	c.Remote.Homeserver = expandVars(c.Remote.Homeserver, vars)
	c.Remote.Token = expandVars(c.Remote.Token, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Provided vars first, then the process environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Identity == "" {
		errs = append(errs, fmt.Errorf("identity is required"))
	}

	if c.Database.Path == "" {
		errs = append(errs, fmt.Errorf("database.path is required"))
	}
	if c.Database.PoolSize < 1 {
		errs = append(errs, fmt.Errorf("database.pool_size must be at least 1"))
	}

	if c.Audit.Capacity < 1 {
		errs = append(errs, fmt.Errorf("audit.capacity must be at least 1"))
	}
	if c.Audit.FlushInterval <= 0 {
		errs = append(errs, fmt.Errorf("audit.flush_interval must be positive"))
	}
	if c.Audit.MaxStringLength < 0 {
		errs = append(errs, fmt.Errorf("audit.max_string_length must not be negative"))
	}

	if c.Policy.ReloadInterval < 0 {
		errs = append(errs, fmt.Errorf("policy.reload_interval must not be negative"))
	}

	switch c.RateLimit.Backend {
	case "memory":
	case "redis":
		if c.RateLimit.RedisAddr == "" {
			errs = append(errs, fmt.Errorf("ratelimit.redis_addr is required with the redis backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("ratelimit.backend must be one of: [memory redis]"))
	}

	if c.Remote.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("remote.timeout must be positive"))
	}
	if c.Remote.Homeserver != "" {
		if c.Remote.Token == "" {
			errs = append(errs, fmt.Errorf("remote.token is required with remote.homeserver"))
		}
		if len(c.Remote.Rooms) == 0 && c.Remote.DefaultRoom == "" {
			errs = append(errs, fmt.Errorf("remote.rooms or remote.default_room is required with remote.homeserver"))
		}
	}
	rooms := make(map[string]string, len(c.Remote.Rooms))
	for scope, room := range c.Remote.Rooms {
		if room == "" {
			errs = append(errs, fmt.Errorf("remote.rooms[%s] is empty", scope))
			continue
		}
		if other, ok := rooms[room]; ok {
			errs = append(errs, fmt.Errorf("remote.rooms: room %s mapped to both %s and %s", room, other, scope))
		}
		rooms[room] = scope
	}

	switch c.Objects.Compression {
	case "none", "lz4", "zstd":
	default:
		errs = append(errs, fmt.Errorf("objects.compression must be one of: [none lz4 zstd]"))
	}

	for name, target := range c.Tools {
		operation, method, ok := strings.Cut(target, ".")
		if !ok || operation == "" || method == "" {
			errs = append(errs, fmt.Errorf("tools[%s]: target %q is not operation.method", name, target))
		}
	}

	if c.Environment == Production && c.HTTP.Addr != "" && strings.HasPrefix(c.HTTP.Addr, ":") {
		errs = append(errs, fmt.Errorf("http.addr %s listens on every interface; bind an explicit host in production", c.HTTP.Addr))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ToolOverrides returns Tools inverted into "operation.method" -> tool
// name form.
func (c *Config) ToolOverrides() map[string]string {
	if len(c.Tools) == 0 {
		return nil
	}
	overrides := make(map[string]string, len(c.Tools))
	for name, target := range c.Tools {
		overrides[target] = name
	}
	return overrides
}

// SocketPath returns the socket a client should dial when no config
// file is given: WARDEN_SOCKET if set, otherwise the default path.
func SocketPath() string {
	if path := os.Getenv("WARDEN_SOCKET"); path != "" {
		return path
	}
	return expandVars(Default().Socket.Path, nil)
}
