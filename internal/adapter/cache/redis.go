// Package cache implements the CacheStore port on Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps a Redis client with the three string operations the service
// tier relies on: GET, SETEX and DEL. Values are serialized JSON blobs
// written atomically; readers see either the old or the new value.
type Store struct {
	rdb *redis.Client
}

// NewStore builds a Store from a redis:// URL.
func NewStore(url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("op=cache.NewStore: %w", err)
	}
	return &Store{rdb: redis.NewClient(opts)}, nil
}

// NewStoreFromClient wraps an existing client. Used by tests with miniredis.
func NewStoreFromClient(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// Get returns the value and whether the key was present.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("op=cache.get key=%s: %w", key, err)
	}
	return v, true, nil
}

// SetEx writes the value with the given TTL.
func (s *Store) SetEx(ctx context.Context, key string, ttl time.Duration, value []byte) error {
	if err := s.rdb.SetEx(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("op=cache.setex key=%s: %w", key, err)
	}
	return nil
}

// Delete removes the given keys. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("op=cache.del: %w", err)
	}
	return nil
}

// DeletePattern removes all keys matching the glob pattern using SCAN so the
// server is never blocked by a KEYS call.
func (s *Store) DeletePattern(ctx context.Context, pattern string) error {
	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("op=cache.scan pattern=%s: %w", pattern, err)
	}
	return s.Delete(ctx, keys...)
}

// Ping verifies connectivity for readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *Store) Close() error { return s.rdb.Close() }
