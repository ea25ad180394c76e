package indexer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/docsearch/internal/llm"
	"github.com/dshills/docsearch/internal/storage"
)

const dimensionProbe = "dimension probe"

// EmbedStatistics contains statistics about an embedding run
type EmbedStatistics struct {
	Embedded  int  // Fingerprints embedded
	Chunks    int  // Vectors written
	Cleared   int  // Vectors dropped by --force or a dimension change
	Rebuilt   bool // The vector table was recreated for a new dimension
	Dimension int
	Duration  time.Duration
}

// Embed embeds every active fingerprint that has no vectors. With force all
// vectors are dropped first.
//
// One probe embedding fixes the dimension before anything is written, also
// when nothing is pending but vectors are stored; a dimension different from
// the stored one rebuilds the vector table and re-embeds everything. Chunks are embedded one at a time, and each
// fingerprint's vectors are replaced in a single transaction, so a failure
// aborts the run without touching fingerprints already done.
func (idx *Indexer) Embed(ctx context.Context, force bool) (*EmbedStatistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.lock.Release()
	return idx.embed(ctx, force)
}

func (idx *Indexer) embed(ctx context.Context, force bool) (*EmbedStatistics, error) {
	startTime := time.Now()
	stats := &EmbedStatistics{}

	if force {
		n, err := idx.storage.ClearVectors(ctx)
		if err != nil {
			return nil, err
		}
		stats.Cleared = n
	}

	pending, err := idx.storage.ListNeedsEmbedding(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents to embed: %w", err)
	}

	info, err := idx.storage.GetVectorInfo(ctx)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 && info.Count == 0 {
		stats.Duration = time.Since(startTime)
		return stats, nil
	}
	if info.Count > 0 && info.Model != "" && info.Model != idx.cfg.EmbedModel {
		idx.logger.Warn("stored vectors come from another model; run embed --force to replace them",
			zap.String("stored", info.Model), zap.String("configured", idx.cfg.EmbedModel))
	}

	// With nothing pending the stored vectors are still checked against the
	// model's current dimension
	probeText, probeName := llm.FormatDocument("", dimensionProbe), dimensionProbe
	if len(pending) > 0 {
		first := idx.chunker.Chunk(pending[0].Body)[0]
		probeText, probeName = llm.FormatDocument(pending[0].Title, first.Text), pending[0].DisplayPath
	}
	probe, err := idx.embedder.Embed(ctx, idx.cfg.EmbedModel, probeText)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", probeName, err)
	}
	stats.Dimension = len(probe)

	rebuilt, err := idx.storage.EnsureVectorTable(ctx, stats.Dimension, idx.cfg.EmbedModel)
	if err != nil {
		return nil, err
	}
	if rebuilt {
		stats.Rebuilt = true
		stats.Cleared += info.Count
		idx.logger.Warn("embedding dimension changed, vector table rebuilt",
			zap.Int("previous", info.Dimension), zap.Int("dimension", stats.Dimension))
		if pending, err = idx.storage.ListNeedsEmbedding(ctx); err != nil {
			return nil, err
		}
	}

	for _, p := range pending {
		n, err := idx.embedDocument(ctx, p, stats.Dimension)
		if err != nil {
			stats.Duration = time.Since(startTime)
			return stats, fmt.Errorf("embed %s: %w", p.DisplayPath, err)
		}
		stats.Embedded++
		stats.Chunks += n
	}

	stats.Duration = time.Since(startTime)
	idx.logger.Info("embedding completed",
		zap.Int("embedded", stats.Embedded),
		zap.Int("chunks", stats.Chunks),
		zap.Int("dimension", stats.Dimension),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

// embedDocument embeds every chunk of one fingerprint and replaces its vectors
func (idx *Indexer) embedDocument(ctx context.Context, p *storage.PendingDocument, dimension int) (int, error) {
	chunks := idx.chunker.Chunk(p.Body)
	vectors := make([]*storage.Vector, 0, len(chunks))
	now := time.Now()
	for _, c := range chunks {
		embedding, err := idx.embedder.Embed(ctx, idx.cfg.EmbedModel, llm.FormatDocument(p.Title, c.Text))
		if err != nil {
			return 0, err
		}
		if len(embedding) != dimension {
			return 0, fmt.Errorf("chunk %d: embedding dimension %d, expected %d", c.Seq, len(embedding), dimension)
		}
		vectors = append(vectors, &storage.Vector{
			Hash:       p.Hash,
			Seq:        c.Seq,
			Pos:        c.Pos,
			Model:      idx.cfg.EmbedModel,
			Embedding:  embedding,
			EmbeddedAt: now,
		})
	}
	if err := idx.storage.ReplaceVectors(ctx, p.Hash, vectors); err != nil {
		return 0, err
	}
	return len(vectors), nil
}

// Refresh updates every collection and embeds what changed, under one hold
// of the index lock. The watcher, the scheduler and MCP updates use it.
func (idx *Indexer) Refresh(ctx context.Context) (*Statistics, *EmbedStatistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, nil, ErrIndexInProgress
	}
	defer idx.lock.Release()

	stats, err := idx.updateAll(ctx)
	if err != nil {
		return stats, nil, err
	}
	embedStats, err := idx.embed(ctx, false)
	return stats, embedStats, err
}

// RefreshCollection is Refresh for a single collection
func (idx *Indexer) RefreshCollection(ctx context.Context, collection *storage.Collection) (*Statistics, *EmbedStatistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, nil, ErrIndexInProgress
	}
	defer idx.lock.Release()

	stats, err := idx.update(ctx, collection)
	if err != nil {
		return stats, nil, err
	}
	embedStats, err := idx.embed(ctx, false)
	return stats, embedStats, err
}
