package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/deusflow/newslens/internal/logger"
	_ "github.com/lib/pq"
)

// PostgresCache stores cache entries in a PostgreSQL table, one row per key.
type PostgresCache struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresCache creates a new PostgreSQL cache instance
func NewPostgresCache(ctx context.Context, connectionString string) (*PostgresCache, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewPostgresCacheDB(ctx, db)
}

// NewPostgresCacheDB wraps an open database handle. The handle is closed on error.
func NewPostgresCacheDB(ctx context.Context, db *sql.DB) (*PostgresCache, error) {
	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pc := &PostgresCache{db: db, now: time.Now}

	// Initialize schema
	if err := pc.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("PostgreSQL cache connected")
	return pc, nil
}

// initSchema creates the necessary tables if they don't exist
func (pc *PostgresCache) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS llm_cache (
		key        TEXT PRIMARY KEY,
		payload    JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_llm_cache_created_at ON llm_cache(created_at);
	`

	if _, err := pc.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SetClock overrides the time source.
func (pc *PostgresCache) SetClock(now func() time.Time) {
	pc.now = now
}

func (pc *PostgresCache) Get(ctx context.Context, key string, ttl time.Duration) ([]byte, bool) {
	if ttl <= 0 {
		return nil, false
	}

	var (
		payload   []byte
		createdAt time.Time
	)
	err := pc.db.QueryRowContext(ctx,
		`SELECT payload, created_at FROM llm_cache WHERE key = $1`, key,
	).Scan(&payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false
	}
	if err != nil {
		logger.Warn("Cache read error", "backend", "postgres", "key", key, "error", err)
		return nil, false
	}

	if pc.now().Sub(createdAt) > ttl {
		if _, err := pc.db.ExecContext(ctx,
			`DELETE FROM llm_cache WHERE key = $1 AND created_at = $2`, key, createdAt,
		); err != nil {
			logger.Warn("Cache eviction error", "backend", "postgres", "key", key, "error", err)
		}
		return nil, false
	}
	return payload, true
}

// Put upserts the payload, resetting its creation time.
func (pc *PostgresCache) Put(ctx context.Context, key string, payload []byte) error {
	query := `
		INSERT INTO llm_cache (key, payload, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload, created_at = EXCLUDED.created_at
	`
	if _, err := pc.db.ExecContext(ctx, query, key, string(payload), pc.now()); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Cleanup removes entries older than ttl.
func (pc *PostgresCache) Cleanup(ctx context.Context, ttl time.Duration) (int, error) {
	if ttl <= 0 {
		return 0, nil
	}
	result, err := pc.db.ExecContext(ctx, `DELETE FROM llm_cache WHERE created_at < $1`, pc.now().Add(-ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		logger.Info("Cleaned up old cache rows", "rows", rows)
	}
	return int(rows), nil
}

// Close closes the database connection
func (pc *PostgresCache) Close() error {
	if pc.db != nil {
		return pc.db.Close()
	}
	return nil
}
