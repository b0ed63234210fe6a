// Package counter provides the shared TTL counter store backing admission
// control and other cross-process state.
package counter

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a multi-writer counter store with fixed-window TTL semantics.
// The first increment of a key starts its window; later increments within
// the window do not extend it.
type Store interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	Reset(ctx context.Context, pattern string) (int64, error)
	Close() error
}

type redisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string) (Store, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &redisStore{client: client}, nil
}

// NewStoreWithClient wraps an existing client; the caller owns the client
// lifecycle.
func NewStoreWithClient(client *redis.Client) Store {
	return &redisStore{client: client}
}

// Incr atomically increments key and arms its TTL on the first increment of
// the window.
func (s *redisStore) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	// Lua script so INCR and the first-increment EXPIRE are one atomic step
	script := `
		local current = redis.call('INCR', KEYS[1])
		if current == 1 then
			redis.call('PEXPIRE', KEYS[1], ARGV[1])
		end
		return current
	`

	current, err := s.client.Eval(ctx, script, []string{key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("counter increment failed: %w", err)
	}
	return current, nil
}

// Reset deletes all counters matching pattern and returns how many were
// removed. Operator use only.
func (s *redisStore) Reset(ctx context.Context, pattern string) (int64, error) {
	keys, err := s.client.Keys(ctx, pattern).Result()
	if err != nil {
		return 0, fmt.Errorf("counter scan failed: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	deleted, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("counter reset failed: %w", err)
	}
	return deleted, nil
}

func (s *redisStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
