// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bureau-foundation/warden/lib/clock"
)

// hitScript increments a key and starts its expiry on the first hit of
// a window. It returns the count and the remaining lifetime in ms.
var hitScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

// RedisCounter shares rate-limit windows between warden processes
// through Redis. When Redis is unreachable it counts locally in
// Fallback so the limit still applies per process.
type RedisCounter struct {
	client   redis.UniversalClient
	prefix   string
	clock    clock.Clock
	fallback *MemoryCounter
	logger   *slog.Logger
}

// NewRedisCounter wraps client. Keys are stored under prefix.
func NewRedisCounter(client redis.UniversalClient, prefix string, c clock.Clock, logger *slog.Logger) *RedisCounter {
	if prefix == "" {
		prefix = "warden:rl:"
	}
	return &RedisCounter{
		client:   client,
		prefix:   prefix,
		clock:    c,
		fallback: NewMemoryCounter(c),
		logger:   logger,
	}
}

// Hit implements Counter.
func (r *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (Window, error) {
	result, err := hitScript.Run(ctx, r.client, []string{r.prefix + key}, window.Milliseconds()).Int64Slice()
	if err == nil && len(result) != 2 {
		err = fmt.Errorf("unexpected script reply length %d", len(result))
	}
	if err != nil {
		r.logger.Warn("redis rate-limit counter unavailable, counting locally",
			"key", key,
			"error", err,
		)
		return r.fallback.Hit(ctx, key, window)
	}

	ttl := time.Duration(result[1]) * time.Millisecond
	if ttl < 0 {
		ttl = window
	}
	return Window{Count: int(result[0]), ResetAt: r.clock.Now().Add(ttl)}, nil
}
