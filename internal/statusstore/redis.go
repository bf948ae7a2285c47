// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package statusstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps every status in one hash so All is a single HGETALL.
type RedisStore struct {
	client redis.UniversalClient
	key    string
	owned  bool
}

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("statusstore: redis ping %s: %w", addr, err)
	}
	s := NewRedisStoreWithClient(client, prefix)
	s.owned = true
	return s, nil
}

// NewRedisStoreWithClient uses an existing client. Close leaves it open.
func NewRedisStoreWithClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "ordertrack:"
	}
	return &RedisStore{client: client, key: prefix + "status"}
}

func (s *RedisStore) Get(ctx context.Context, orderID string) (string, error) {
	v, err := s.client.HGet(ctx, s.key, orderID).Result()
	if errors.Is(err, redis.Nil) {
		return "", notFound(orderID)
	}
	if err != nil {
		return "", fmt.Errorf("statusstore: redis get %s: %w", orderID, err)
	}
	return v, nil
}

func (s *RedisStore) Put(ctx context.Context, orderID, status string) error {
	if err := checkKey(orderID); err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.key, orderID, status).Err(); err != nil {
		return fmt.Errorf("statusstore: redis put %s: %w", orderID, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, orderID string) error {
	if err := s.client.HDel(ctx, s.key, orderID).Err(); err != nil {
		return fmt.Errorf("statusstore: redis delete %s: %w", orderID, err)
	}
	return nil
}

func (s *RedisStore) All(ctx context.Context) (map[string]string, error) {
	m, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("statusstore: redis scan: %w", err)
	}
	return m, nil
}

func (s *RedisStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}
