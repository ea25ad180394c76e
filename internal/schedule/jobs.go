package schedule

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/dshills/docsearch/internal/indexer"
	"github.com/dshills/docsearch/internal/logging"
)

// Job names
const (
	JobRefresh = "refresh"
	JobCleanup = "cleanup"
)

// RefreshJob updates every collection and embeds what changed
type RefreshJob struct {
	Indexer *indexer.Indexer
	Logger  *zap.Logger
}

func (j *RefreshJob) Name() string { return JobRefresh }

func (j *RefreshJob) Run(ctx context.Context) error {
	stats, embedStats, err := j.Indexer.Refresh(ctx)
	if errors.Is(err, indexer.ErrIndexInProgress) {
		// The watcher or an MCP update got there first
		logging.OrNop(j.Logger).Info("refresh skipped: index in use")
		return nil
	}
	if err != nil {
		return err
	}
	logging.OrNop(j.Logger).Info("refresh completed",
		zap.Int("indexed", stats.Indexed),
		zap.Int("updated", stats.Updated),
		zap.Int("removed", stats.Removed),
		zap.Int("embedded", embedStats.Embedded))
	return nil
}

// CleanupJob removes orphaned vectors and vacuums. The model cache is kept.
type CleanupJob struct {
	Indexer *indexer.Indexer
}

func (j *CleanupJob) Name() string { return JobCleanup }

func (j *CleanupJob) Run(ctx context.Context) error {
	_, err := j.Indexer.Cleanup(ctx, nil)
	if errors.Is(err, indexer.ErrIndexInProgress) {
		return nil
	}
	return err
}

// Register adds the refresh and cleanup jobs for the given specs. Empty specs
// are skipped.
func Register(s *CronScheduler, idx *indexer.Indexer, refreshSpec, cleanupSpec string, logger *zap.Logger) error {
	if err := s.AddJob(&RefreshJob{Indexer: idx, Logger: logger}, refreshSpec); err != nil {
		return err
	}
	return s.AddJob(&CleanupJob{Indexer: idx}, cleanupSpec)
}
