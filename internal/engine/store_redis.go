package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the whole lookup map serialized under one Redis key.
// The key has no expiry: entries live until overwritten.
type RedisStore struct {
	rdb   *redis.Client
	key   string
	retry RetryConfig
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{rdb: rdb, key: key, retry: StoreRetryConfig}
}

// DialRedisStore parses redisURL, pings the server and returns a store.
func DialRedisStore(ctx context.Context, redisURL, key string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis store: invalid URL: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis store: unreachable: %w", err)
	}
	slog.Info("cache: redis store connected", slog.String("addr", opts.Addr), slog.String("key", key))
	return NewRedisStore(rdb, key), nil
}

func (s *RedisStore) Name() string { return "redis" }

// Close closes the underlying client.
func (s *RedisStore) Close() error { return s.rdb.Close() }

func (s *RedisStore) Load(ctx context.Context) (map[string]CacheEntry, error) {
	data, err := RetryDo(ctx, s.retry, func() ([]byte, error) {
		return s.rdb.Get(ctx, s.key).Bytes()
	})
	if errors.Is(err, redis.Nil) {
		return map[string]CacheEntry{}, nil
	}
	if err != nil {
		return nil, &StoreLoadError{Store: s.Name(), Err: err}
	}
	return decodeEntries(s.Name(), data)
}

func (s *RedisStore) Save(ctx context.Context, entries map[string]CacheEntry) error {
	data, err := encodeEntries(entries)
	if err != nil {
		return &StoreSaveError{Store: s.Name(), Err: err}
	}
	_, err = RetryDo(ctx, s.retry, func() (string, error) {
		return s.rdb.Set(ctx, s.key, data, 0).Result()
	})
	if err != nil {
		return &StoreSaveError{Store: s.Name(), Err: err}
	}
	return nil
}
