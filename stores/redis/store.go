// Package redis provides a Redis-backed questauth.KeyValueStore, for
// processes on several hosts sharing one credential.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps values in Redis under a common prefix.
type Store struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore creates a Store. Keys are written as "<prefix>:<key>". A ttl of
// zero keeps values until they are deleted.
func NewStore(client redis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "questauth"
	}
	return &Store{redis: client, prefix: prefix, ttl: ttl}
}

func (s *Store) key(key string) string {
	return s.prefix + ":" + key
}

// Get returns nil, nil when the key does not exist.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.redis.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.redis.Set(ctx, s.key(key), value, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
