// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis is a Redis-backed implementation of Cache. Values are stored as JSON
// under Prefix+key so several instances can share looked-up routes.
type Redis[V any] struct {
	client redis.UniversalClient
	prefix string
	logger zerolog.Logger
	owned  bool
	stats  counters
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string
	DB       int
	Prefix   string
}

// NewRedis dials Redis and returns a cache that owns the connection.
func NewRedis[V any](config RedisConfig, logger zerolog.Logger) (*Redis[V], error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().
		Str("addr", config.Addr).
		Int("db", config.DB).
		Msg("connected to Redis cache")

	c := NewRedisWithClient[V](client, config.Prefix, logger)
	c.owned = true
	return c, nil
}

// NewRedisWithClient wraps an existing client. Close does not close it.
func NewRedisWithClient[V any](client redis.UniversalClient, prefix string, logger zerolog.Logger) *Redis[V] {
	return &Redis[V]{client: client, prefix: prefix, logger: logger}
}

// Get retrieves a value from Redis.
func (c *Redis[V]) Get(key string) (V, bool) {
	var zero V
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.stats.misses.Add(1)
		return zero, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("redis get failed")
		c.stats.misses.Add(1)
		return zero, false
	}

	var result V
	if err := json.Unmarshal(val, &result); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("json unmarshal failed")
		c.stats.misses.Add(1)
		return zero, false
	}

	c.stats.hits.Add(1)
	return result, true
}

// Set stores a value in Redis with TTL. Failures are logged, not returned.
func (c *Redis[V]) Set(key string, value V, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("json marshal failed")
		return
	}

	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("redis set failed")
		return
	}
	c.stats.sets.Add(1)
}

// Delete removes a value from Redis.
func (c *Redis[V]) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("redis delete failed")
	}
}

// Stats returns counters. CurrentSize is not tracked for shared keyspaces.
func (c *Redis[V]) Stats() Stats {
	return c.stats.snapshot(0)
}

// Close closes the Redis connection if the cache dialed it.
func (c *Redis[V]) Close() error {
	if !c.owned {
		return nil
	}
	return c.client.Close()
}

// HealthCheck checks if Redis is available.
func (c *Redis[V]) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
