package indexer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/docsearch/internal/cache"
)

// CleanupStatistics reports what a cleanup removed
type CleanupStatistics struct {
	OrphanVectors int // Vectors of fingerprints no active document carries
	CacheEntries  int // Model responses removed; -1 when the store cannot clear
}

// Cleanup removes orphaned vectors and compacts the database. A non-nil
// modelCache is cleared as well.
func (idx *Indexer) Cleanup(ctx context.Context, modelCache cache.Store) (*CleanupStatistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.lock.Release()

	stats := &CleanupStatistics{}
	n, err := idx.storage.DeleteOrphanVectors(ctx)
	if err != nil {
		return nil, err
	}
	stats.OrphanVectors = n

	if modelCache != nil {
		if _, ok := modelCache.(cache.Clearer); !ok {
			stats.CacheEntries = -1
		} else if stats.CacheEntries, err = cache.Clear(ctx, modelCache); err != nil {
			return stats, fmt.Errorf("failed to clear model cache: %w", err)
		}
	}

	if err := idx.storage.Vacuum(ctx); err != nil {
		return stats, fmt.Errorf("failed to vacuum: %w", err)
	}

	idx.logger.Info("cleanup completed",
		zap.Int("orphan_vectors", stats.OrphanVectors),
		zap.Int("cache_entries", stats.CacheEntries))
	return stats, nil
}
