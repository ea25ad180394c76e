package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Store is a key-value store for previously computed model responses.
// Entries have no expiry; only an explicit Clear removes them.
type Store interface {
	// Get returns the value for key and whether it was present
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value under key, replacing any previous value
	Put(ctx context.Context, key string, value []byte) error
}

// Clearer is implemented by stores that support explicit cleanup
type Clearer interface {
	// Clear removes every entry and reports how many were removed
	Clear(ctx context.Context) (int, error)
}

// Counter is implemented by stores that can report their size
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Key derives a deterministic cache key from its parts
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Clear clears s when it supports cleanup and returns 0 otherwise
func Clear(ctx context.Context, s Store) (int, error) {
	if c, ok := s.(Clearer); ok {
		return c.Clear(ctx)
	}
	return 0, nil
}

// Count reports the size of s when it supports counting, -1 otherwise
func Count(ctx context.Context, s Store) (int, error) {
	if c, ok := s.(Counter); ok {
		return c.Count(ctx)
	}
	return -1, nil
}
