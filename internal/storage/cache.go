package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LLMCache stores model responses in the index database, so cached
// embeddings and judgments survive restarts and are shared by every
// process using the same index file.
type LLMCache struct {
	db *sql.DB
}

// Get returns the cached value for key
func (c *LLMCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := c.db.QueryRowContext(ctx, `SELECT value FROM llm_cache WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}
	return value, true, nil
}

// Put stores value under key
func (c *LLMCache) Put(ctx context.Context, key string, value []byte) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO llm_cache (key, value, created_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at
	`, key, value, time.Now())
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Clear removes every cached response
func (c *LLMCache) Clear(ctx context.Context) (int, error) {
	result, err := c.db.ExecContext(ctx, `DELETE FROM llm_cache`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear cache: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// Count returns the number of cached responses
func (c *LLMCache) Count(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM llm_cache`).Scan(&n)
	return n, err
}
