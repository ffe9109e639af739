package app

import (
	"context"

	"github.com/deusflow/newslens/internal/cache"
	"github.com/deusflow/newslens/internal/config"
	"github.com/deusflow/newslens/internal/logger"
	"github.com/deusflow/newslens/internal/storage"
)

// OpenStore returns the cache backend selected by cfg and a function that releases it.
// A durable backend that cannot be opened falls back to the file store.
func OpenStore(ctx context.Context, cfg *config.Config) (cache.Store, func() error) {
	noop := func() error { return nil }

	switch cfg.CacheBackend {
	case "memory":
		return cache.NewMemory(), noop

	case "postgres":
		pc, err := storage.NewPostgresCache(ctx, cfg.DatabaseURL)
		if err == nil {
			return pc, pc.Close
		}
		logger.Warn("PostgreSQL cache unavailable, falling back to file cache", "error", err)

	case "redis":
		rc, err := storage.NewRedisCache(ctx, cfg.RedisAddr)
		if err == nil {
			return rc, rc.Close
		}
		logger.Warn("Redis cache unavailable, falling back to file cache", "error", err)
	}

	fc := storage.NewFileCache(cfg.CacheFilePath)
	logger.Debug("Using file cache", "path", fc.Path(), "entries", fc.GetStats()["total_items"])
	return fc, noop
}
