package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prperemyshlev/shop-session/pkg/database"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "shop-session:"

// redisBlobStore implements BlobStore on Redis string keys with native expiry
type redisBlobStore struct {
	redis *database.Redis
}

// NewRedisBlobStore creates a Redis-backed slot store
func NewRedisBlobStore(redis *database.Redis) BlobStore {
	return &redisBlobStore{redis: redis}
}

func (s *redisBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	value, err := s.redis.Client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("slot %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read slot %s: %w", key, err)
	}

	return value, nil
}

func (s *redisBlobStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}

	if err := s.redis.Client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write slot %s: %w", key, err)
	}
	return nil
}

func (s *redisBlobStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, 0, len(keys))
	for _, key := range keys {
		prefixed = append(prefixed, s.key(key))
	}

	if err := s.redis.Client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("failed to delete slots: %w", err)
	}
	return nil
}

func (s *redisBlobStore) key(key string) string {
	return redisKeyPrefix + key
}
