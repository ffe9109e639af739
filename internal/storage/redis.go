package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/deusflow/newslens/internal/cache"
	"github.com/deusflow/newslens/internal/logger"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "newslens:cache:"

// RedisCache stores each cache entry as a JSON string value.
type RedisCache struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisCache connects to addr and verifies the connection.
func NewRedisCache(ctx context.Context, addr string) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	logger.Info("Redis cache connected", "addr", addr)
	return &RedisCache{rdb: rdb, now: time.Now}, nil
}

// SetClock overrides the time source.
func (rc *RedisCache) SetClock(now func() time.Time) {
	rc.now = now
}

func (rc *RedisCache) Get(ctx context.Context, key string, ttl time.Duration) ([]byte, bool) {
	raw, err := rc.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logger.Warn("Cache read error", "backend", "redis", "key", key, "error", err)
		return nil, false
	}

	var entry cache.Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		logger.Warn("Cache entry corrupt", "backend", "redis", "key", key, "error", err)
		return nil, false
	}
	if entry.Expired(rc.now(), ttl) {
		if ttl > 0 {
			if err := rc.rdb.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
				logger.Warn("Cache eviction error", "backend", "redis", "key", key, "error", err)
			}
		}
		return nil, false
	}
	return entry.Payload, true
}

func (rc *RedisCache) Put(ctx context.Context, key string, payload []byte) error {
	raw, err := json.Marshal(cache.Entry{
		Timestamp: rc.now().UnixMilli(),
		Payload:   json.RawMessage(payload),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := rc.rdb.Set(ctx, redisKeyPrefix+key, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Cleanup scans the cache keys and deletes entries older than ttl or undecodable.
func (rc *RedisCache) Cleanup(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}

	now := rc.now()
	removed := 0
	iter := rc.rdb.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := rc.rdb.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return removed, fmt.Errorf("failed to read %s: %w", key, err)
		}

		var entry cache.Entry
		if err := json.Unmarshal(raw, &entry); err == nil && !entry.Expired(now, ttl) {
			continue
		}
		if err := rc.rdb.Del(ctx, key).Err(); err != nil {
			return removed, fmt.Errorf("failed to delete %s: %w", key, err)
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if removed > 0 {
		logger.Info("Cleaned up old cache keys", "backend", "redis", "keys", removed)
	}
	return removed, nil
}

func (rc *RedisCache) Close() error {
	return rc.rdb.Close()
}
