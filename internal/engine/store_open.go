package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// OpenStore picks the persistence backend from cfg: Redis when RedisURL is
// set, SQLite when CacheSQLitePath is set, otherwise the JSON file.
// The returned func releases the backend.
func OpenStore(ctx context.Context, cfg Config) (Store, func(), error) {
	cfg = cfg.WithDefaults()
	switch {
	case cfg.RedisURL != "":
		s, err := DialRedisStore(ctx, cfg.RedisURL, cfg.RedisKey)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis store: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	case cfg.CacheSQLitePath != "":
		s, err := OpenSQLiteStore(cfg.CacheSQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		slog.Info("cache: sqlite store opened", slog.String("path", cfg.CacheSQLitePath))
		return s, func() { _ = s.Close() }, nil
	default:
		slog.Info("cache: file store", slog.String("path", cfg.CacheFile))
		return NewFileStore(cfg.CacheFile), func() {}, nil
	}
}
