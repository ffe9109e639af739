// Package cache defines the TTL-keyed result store shared by the clusterer and synthesizer.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/deusflow/newslens/internal/logger"
	"github.com/deusflow/newslens/internal/metrics"
)

// Store persists opaque JSON payloads by key.
//
// Get returns the payload if an entry exists and is not older than ttl; expired entries
// are evicted. A ttl <= 0 never serves an entry. Implementations degrade to a miss on
// backend errors and must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string, ttl time.Duration) ([]byte, bool)
	Put(ctx context.Context, key string, payload []byte) error
}

// Pruner is implemented by stores that can drop expired entries in bulk.
// A ttl <= 0 removes nothing.
type Pruner interface {
	Cleanup(ctx context.Context, ttl time.Duration) (int, error)
}

// Entry is the persisted form of one cached value.
type Entry struct {
	Timestamp int64           `json:"timestamp"` // unix milliseconds
	Payload   json.RawMessage `json:"payload"`
}

// Created returns the entry creation time.
func (e Entry) Created() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Expired reports whether the entry is older than ttl at now.
func (e Entry) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return true
	}
	return now.Sub(e.Created()) > ttl
}

// Key derives a deterministic cache key from a namespace and content.
func Key(namespace, content string) string {
	h := md5.Sum([]byte(content))
	return namespace + "_" + hex.EncodeToString(h[:])
}

// GetJSON loads and decodes a cached value. Undecodable payloads count as a miss.
func GetJSON[T any](ctx context.Context, s Store, key string, ttl time.Duration) (T, bool) {
	var out T
	raw, ok := s.Get(ctx, key, ttl)
	if !ok {
		metrics.Global.IncrementCacheMisses()
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		logger.Warn("Cache payload undecodable", "key", key, "error", err)
		metrics.Global.IncrementCacheMisses()
		var zero T
		return zero, false
	}
	metrics.Global.IncrementCacheHits()
	return out, true
}

// PutJSON encodes v and stores it under key.
func PutJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(ctx, key, raw)
}

// Memory is a process-local Store.
type Memory struct {
	mu    sync.RWMutex
	items map[string]Entry
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]Entry),
		now:   time.Now,
	}
}

// SetClock overrides the time source.
func (c *Memory) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *Memory) Get(_ context.Context, key string, ttl time.Duration) ([]byte, bool) {
	c.mu.RLock()
	item, exists := c.items[key]
	now := c.now()
	c.mu.RUnlock()
	if !exists {
		return nil, false
	}

	if item.Expired(now, ttl) {
		if ttl > 0 {
			c.mu.Lock()
			if cur, ok := c.items[key]; ok && cur.Timestamp == item.Timestamp {
				delete(c.items, key)
			}
			c.mu.Unlock()
		}
		return nil, false
	}

	return append([]byte(nil), item.Payload...), true
}

func (c *Memory) Put(_ context.Context, key string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = Entry{
		Timestamp: c.now().UnixMilli(),
		Payload:   append(json.RawMessage(nil), payload...),
	}
	return nil
}

// Cleanup drops entries older than ttl and returns how many were removed.
func (c *Memory) Cleanup(_ context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, item := range c.items {
		if item.Expired(now, ttl) {
			delete(c.items, key)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries, live or not.
func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
