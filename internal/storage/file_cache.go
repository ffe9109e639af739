package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/deusflow/newslens/internal/cache"
	"github.com/deusflow/newslens/internal/logger"
)

// FileCache keeps every cache entry in one JSON object on disk.
// Each Get/Put reads, modifies and rewrites the whole file.
type FileCache struct {
	filePath string
	mu       sync.RWMutex
	now      func() time.Time
}

// NewFileCache creates a new file cache instance
func NewFileCache(filePath string) *FileCache {
	return &FileCache{
		filePath: filePath,
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (fc *FileCache) SetClock(now func() time.Time) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.now = now
}

// Path returns the backing file path.
func (fc *FileCache) Path() string {
	return fc.filePath
}

// Get returns the payload stored under key if it is at most ttl old.
func (fc *FileCache) Get(_ context.Context, key string, ttl time.Duration) ([]byte, bool) {
	fc.mu.RLock()
	items, err := fc.load()
	now := fc.now()
	fc.mu.RUnlock()
	if err != nil {
		logger.Warn("Cache read error", "path", fc.filePath, "error", err)
		return nil, false
	}

	entry, exists := items[key]
	if !exists {
		return nil, false
	}

	if entry.Expired(now, ttl) {
		if ttl > 0 {
			fc.evict(key, entry.Timestamp)
		}
		return nil, false
	}

	return entry.Payload, true
}

// Put stores payload under key, replacing any previous entry.
func (fc *FileCache) Put(_ context.Context, key string, payload []byte) error {
	if !json.Valid(payload) {
		return fmt.Errorf("cache payload for %q is not valid JSON", key)
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	items, err := fc.load()
	if err != nil {
		logger.Warn("Cache file unreadable, starting a fresh one", "path", fc.filePath, "error", err)
		items = make(map[string]cache.Entry)
	}

	items[key] = cache.Entry{
		Timestamp: fc.now().UnixMilli(),
		Payload:   json.RawMessage(payload),
	}

	if err := fc.save(items); err != nil {
		logger.Warn("Cache write error", "path", fc.filePath, "error", err)
		return err
	}
	return nil
}

// evict removes key if it still holds the entry created at ts.
func (fc *FileCache) evict(key string, ts int64) {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	items, err := fc.load()
	if err != nil {
		return
	}
	if cur, ok := items[key]; !ok || cur.Timestamp != ts {
		return
	}
	delete(items, key)
	if err := fc.save(items); err != nil {
		logger.Warn("Cache eviction write error", "path", fc.filePath, "error", err)
	}
}

// Cleanup drops every entry older than ttl and returns how many were removed.
func (fc *FileCache) Cleanup(_ context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	items, err := fc.load()
	if err != nil {
		return 0, err
	}
	now := fc.now()
	removed := 0
	for key, entry := range items {
		if entry.Expired(now, ttl) {
			delete(items, key)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, fc.save(items)
}

// load reads the whole map. A missing or empty file is an empty cache.
func (fc *FileCache) load() (map[string]cache.Entry, error) {
	items := make(map[string]cache.Entry)

	data, err := os.ReadFile(fc.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return items, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	if len(data) == 0 {
		return items, nil // Empty file
	}

	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache: %w", err)
	}
	return items, nil
}

// save writes the map to a temp file and renames it over the cache file.
// Payloads are written compact so Get returns the bytes PutJSON stored.
func (fc *FileCache) save(items map[string]cache.Entry) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	dir := filepath.Dir(fc.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(fc.filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close cache file: %w", err)
	}
	if err := os.Rename(tmpName, fc.filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}

// GetStats returns cache statistics
func (fc *FileCache) GetStats() map[string]int {
	fc.mu.RLock()
	defer fc.mu.RUnlock()

	items, err := fc.load()
	if err != nil {
		return map[string]int{"total_items": 0}
	}
	return map[string]int{
		"total_items": len(items),
	}
}
