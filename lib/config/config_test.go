// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warden.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("Environment = %s, want development", cfg.Environment)
	}
	if cfg.RateLimit.Backend != "memory" {
		t.Errorf("RateLimit.Backend = %s, want memory", cfg.RateLimit.Backend)
	}
	if cfg.Audit.FlushInterval != 5*time.Second {
		t.Errorf("Audit.FlushInterval = %v, want 5s", cfg.Audit.FlushInterval)
	}
	if cfg.Remote.Timeout != 30*time.Second {
		t.Errorf("Remote.Timeout = %v, want 30s", cfg.Remote.Timeout)
	}

	// Identity has no sensible default.
	cfg.Identity = "warden-a"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default with identity should validate: %v", err)
	}
}

func TestLoad_RequiresWardenConfig(t *testing.T) {
	t.Setenv("WARDEN_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when WARDEN_CONFIG not set")
	}
	if !strings.HasPrefix(err.Error(), "WARDEN_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoad_WithWardenConfig(t *testing.T) {
	path := writeConfig(t, `
identity: warden-a
database:
  path: /var/lib/warden/warden.db
`)
	t.Setenv("WARDEN_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Identity != "warden-a" {
		t.Errorf("Identity = %s, want warden-a", cfg.Identity)
	}
	if cfg.Database.Path != "/var/lib/warden/warden.db" {
		t.Errorf("Database.Path = %s", cfg.Database.Path)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
environment: production
identity: warden-b
database:
  path: /data/warden.db
  pool_size: 2
http:
  addr: 127.0.0.1:8080
audit:
  capacity: 10
  flush_interval: 250ms
  max_string_length: 64
policy:
  seed_file: /etc/warden/rules.yaml
  reload_interval: 1m
ratelimit:
  backend: redis
  redis_addr: localhost:6379
remote:
  timeout: 5s
  homeserver: https://matrix.example.org
  token: secret
  rooms:
    topic-1: "!abc:example.org"
objects:
  compression: lz4
tools:
  list_plans: plan.list
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Environment != Production {
		t.Errorf("Environment = %s, want production", cfg.Environment)
	}
	if cfg.Database.PoolSize != 2 {
		t.Errorf("Database.PoolSize = %d, want 2", cfg.Database.PoolSize)
	}
	if cfg.Audit.FlushInterval != 250*time.Millisecond {
		t.Errorf("Audit.FlushInterval = %v, want 250ms", cfg.Audit.FlushInterval)
	}
	if cfg.Policy.ReloadInterval != time.Minute {
		t.Errorf("Policy.ReloadInterval = %v, want 1m", cfg.Policy.ReloadInterval)
	}
	if cfg.RateLimit.Backend != "redis" || cfg.RateLimit.RedisAddr != "localhost:6379" {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.Prefix != "warden:ratelimit:" {
		t.Errorf("RateLimit.Prefix should keep its default, got %q", cfg.RateLimit.Prefix)
	}
	if cfg.Remote.Rooms["topic-1"] != "!abc:example.org" {
		t.Errorf("Remote.Rooms = %v", cfg.Remote.Rooms)
	}
	if cfg.Objects.Compression != "lz4" {
		t.Errorf("Objects.Compression = %s, want lz4", cfg.Objects.Compression)
	}
	overrides := cfg.ToolOverrides()
	if overrides["plan.list"] != "list_plans" {
		t.Errorf("ToolOverrides = %v", overrides)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFile_EnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
identity: from-file
database:
  path: /from/file.db
`)
	t.Setenv("WARDEN_IDENTITY", "from-env")
	t.Setenv("WARDEN_DATABASE", "/from/env.db")
	t.Setenv("WARDEN_HTTP_ADDR", "127.0.0.1:9000")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Identity != "from-env" {
		t.Errorf("Identity = %s, want from-env", cfg.Identity)
	}
	if cfg.Database.Path != "/from/env.db" {
		t.Errorf("Database.Path = %s, want /from/env.db", cfg.Database.Path)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9000" {
		t.Errorf("HTTP.Addr = %s", cfg.HTTP.Addr)
	}
}

func TestLoadFile_ExpandsVariables(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("WARDEN_TEST_TOKEN", "tok-123")
	path := writeConfig(t, `
identity: warden-a
database:
  path: ${HOME}/state/${WARDEN_IDENTITY}.db
socket:
  path: ${WARDEN_TEST_UNSET:-/run/warden}/warden.sock
remote:
  homeserver: https://matrix.example.org
  token: ${WARDEN_TEST_TOKEN}
  default_room: "!room:example.org"
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Database.Path != "/home/tester/state/warden-a.db" {
		t.Errorf("Database.Path = %s", cfg.Database.Path)
	}
	if cfg.Socket.Path != "/run/warden/warden.sock" {
		t.Errorf("Socket.Path = %s", cfg.Socket.Path)
	}
	if cfg.Remote.Token != "tok-123" {
		t.Errorf("Remote.Token = %s", cfg.Remote.Token)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("WARDEN_TEST_VAR", "from-env")

	tests := []struct {
		input string
		vars  map[string]string
		want  string
	}{
		{"plain", nil, "plain"},
		{"${A}", map[string]string{"A": "x"}, "x"},
		{"${WARDEN_TEST_VAR}", nil, "from-env"},
		{"${WARDEN_TEST_MISSING:-fallback}", nil, "fallback"},
		{"${WARDEN_TEST_MISSING}", nil, ""},
		{"${A}/${B:-b}", map[string]string{"A": "a"}, "a/b"},
		{"${A:-ignored}", map[string]string{"A": "set"}, "set"},
	}
	for _, tt := range tests {
		if got := expandVars(tt.input, tt.vars); got != tt.want {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errors []string
	}{
		{
			name:   "valid",
			modify: func(*Config) {},
		},
		{
			name:   "missing identity",
			modify: func(c *Config) { c.Identity = "" },
			errors: []string{"identity is required"},
		},
		{
			name:   "bad environment",
			modify: func(c *Config) { c.Environment = "qa" },
			errors: []string{"invalid environment: qa"},
		},
		{
			name:   "redis without address",
			modify: func(c *Config) { c.RateLimit.Backend = "redis" },
			errors: []string{"ratelimit.redis_addr is required"},
		},
		{
			name:   "unknown backend",
			modify: func(c *Config) { c.RateLimit.Backend = "etcd" },
			errors: []string{"ratelimit.backend must be one of"},
		},
		{
			name: "homeserver without token or rooms",
			modify: func(c *Config) {
				c.Remote.Homeserver = "https://matrix.example.org"
			},
			errors: []string{"remote.token is required", "remote.rooms or remote.default_room"},
		},
		{
			name: "room mapped twice",
			modify: func(c *Config) {
				c.Remote.Rooms = map[string]string{"a": "!r:x", "b": "!r:x"}
			},
			errors: []string{"mapped to both"},
		},
		{
			name:   "bad compression",
			modify: func(c *Config) { c.Objects.Compression = "gzip" },
			errors: []string{"objects.compression"},
		},
		{
			name:   "bad tool target",
			modify: func(c *Config) { c.Tools = map[string]string{"x": "nodot"} },
			errors: []string{"is not operation.method"},
		},
		{
			name: "production wildcard listener",
			modify: func(c *Config) {
				c.Environment = Production
				c.HTTP.Addr = ":8080"
			},
			errors: []string{"listens on every interface"},
		},
		{
			name: "several problems reported together",
			modify: func(c *Config) {
				c.Identity = ""
				c.Audit.Capacity = 0
				c.Remote.Timeout = 0
			},
			errors: []string{"identity is required", "audit.capacity", "remote.timeout"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Identity = "warden-a"
			tt.modify(cfg)

			err := cfg.Validate()
			if len(tt.errors) == 0 {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected errors %v, got nil", tt.errors)
			}
			for _, want := range tt.errors {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}

func TestSocketPath(t *testing.T) {
	t.Setenv("WARDEN_SOCKET", "/run/warden/custom.sock")
	if got := SocketPath(); got != "/run/warden/custom.sock" {
		t.Errorf("SocketPath() = %q, want the WARDEN_SOCKET value", got)
	}

	t.Setenv("WARDEN_SOCKET", "")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got := SocketPath(); got != "/run/user/1000/warden.sock" {
		t.Errorf("SocketPath() = %q, want /run/user/1000/warden.sock", got)
	}
}
