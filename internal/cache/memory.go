package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemorySize is the default number of entries kept in memory
const DefaultMemorySize = 10000

// Memory is an in-process LRU store. Eviction only happens at capacity.
type Memory struct {
	cache *lru.Cache[string, []byte]
}

// NewMemory creates an LRU store holding at most size entries
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = DefaultMemorySize
	}
	c, err := lru.New[string, []byte](size)
	if err != nil {
		c, _ = lru.New[string, []byte](DefaultMemorySize)
	}
	return &Memory{cache: c}
}

// Get returns a copy of the cached value so callers cannot mutate the entry
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	m.cache.Add(key, stored)
	return nil
}

func (m *Memory) Clear(_ context.Context) (int, error) {
	n := m.cache.Len()
	m.cache.Purge()
	return n, nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	return m.cache.Len(), nil
}
