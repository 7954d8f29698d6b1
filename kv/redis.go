package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
)

const (
	defaultMaxRetries      = 3
	defaultMinRetryBackoff = 50 * time.Millisecond
	defaultMaxRetryBackoff = time.Second
	defaultDialTimeout     = 2 * time.Second
	defaultConnectAttempts = 5
)

const casScript = `
local current = redis.call("GET", KEYS[1])
if ARGV[1] == "" then
  if current then
    return 0
  end
else
  if not current or current ~= ARGV[1] then
    return 0
  end
end
redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
return 1
`

var casLua = redis.NewScript(casScript)

// RedisConfig controls the connection and its bounded reconnect policy.
//
// RedisConfig instances are intended to be configured during initialization
// and then treated as immutable.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Per-command retry policy applied by the client itself. After the
	// capped retries the command fails fast with a connectivity error.
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration

	DialTimeout time.Duration

	// ConnectAttempts bounds the initial reachability check in [NewRedis].
	ConnectAttempts uint
}

func (c *RedisConfig) normalize() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.MinRetryBackoff <= 0 {
		c.MinRetryBackoff = defaultMinRetryBackoff
	}
	if c.MaxRetryBackoff <= 0 {
		c.MaxRetryBackoff = defaultMaxRetryBackoff
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = defaultDialTimeout
	}
	if c.ConnectAttempts == 0 {
		c.ConnectAttempts = defaultConnectAttempts
	}
}

// Redis is the Redis-backed [Store].
type Redis struct {
	client redis.UniversalClient
}

// NewRedis dials Redis and verifies reachability, retrying the initial ping
// with exponential backoff up to cfg.ConnectAttempts before giving up.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	cfg.normalize()

	client := redis.NewClient(&redis.Options{
		Addr:            cfg.Addr,
		Password:        cfg.Password,
		DB:              cfg.DB,
		MaxRetries:      cfg.MaxRetries,
		MinRetryBackoff: cfg.MinRetryBackoff,
		MaxRetryBackoff: cfg.MaxRetryBackoff,
		DialTimeout:     cfg.DialTimeout,
	})

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.MinRetryBackoff
	bo.MaxInterval = cfg.MaxRetryBackoff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, client.Ping(ctx).Err()
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(cfg.ConnectAttempts))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &Redis{client: client}, nil
}

// NewRedisFromClient wraps an existing client. The caller keeps ownership of
// the client's lifecycle.
func NewRedisFromClient(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Get implements [Store].
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrKeyNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return val, nil
}

// SetWithTTL implements [Store].
func (r *Redis) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// SetManyWithTTL implements [Store]. The batch runs inside MULTI/EXEC so a
// reader never observes a subset of the entries.
func (r *Redis) SetManyWithTTL(ctx context.Context, entries map[string]string, ttl time.Duration) error {
	if len(entries) == 0 {
		return nil
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range entries {
			pipe.Set(ctx, key, value, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Delete implements [Store].
func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// RefreshTTL implements [Store].
func (r *Redis) RefreshTTL(ctx context.Context, ttl time.Duration, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.PExpire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// CompareAndSwap implements [Store] with a Lua guard so the read-compare-write
// cannot interleave with a concurrent writer.
func (r *Redis) CompareAndSwap(ctx context.Context, key, expect, value string, ttl time.Duration) (bool, error) {
	res, err := casLua.Run(ctx, r.client, []string{key}, expect, value, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return res == 1, nil
}

// Ping implements [Store].
func (r *Redis) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}
