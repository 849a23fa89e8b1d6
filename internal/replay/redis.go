// ABOUTME: Redis-backed EntryStore for sharing the replay ledger across gateways.
// ABOUTME: Entries are JSON strings under a key prefix with native Redis TTL.

package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisPrefix namespaces ledger keys.
const DefaultRedisPrefix = "replay:"

// RedisStore implements EntryStore with a go-redis client.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client. An empty prefix uses DefaultRedisPrefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// GetReplayEntry loads an entry or returns ErrEntryNotFound.
func (s *RedisStore) GetReplayEntry(ctx context.Context, key string) (*Entry, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decoding replay entry: %w", err)
	}
	return &entry, nil
}

// PutReplayEntry writes an entry with the given TTL.
func (s *RedisStore) PutReplayEntry(ctx context.Context, entry *Entry, ttl time.Duration) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding replay entry: %w", err)
	}
	if err := s.client.Set(ctx, s.prefix+entry.Key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// CreateReplayEntry writes an entry with SETNX. Redis expires keys itself, so
// any key still present is live.
func (s *RedisStore) CreateReplayEntry(ctx context.Context, entry *Entry, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("encoding replay entry: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.prefix+entry.Key, data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// DeleteReplayEntry removes an entry. Missing keys are not an error.
func (s *RedisStore) DeleteReplayEntry(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
