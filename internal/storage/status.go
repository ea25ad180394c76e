package storage

import (
	"context"
	"database/sql"
)

// GetStatus gathers index statistics
func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	status := &Status{}

	collections, err := s.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range collections {
		cs := &CollectionStatus{Collection: c}
		err := s.db.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(CASE WHEN active = 1 THEN 1 ELSE 0 END), 0),
			       COALESCE(SUM(CASE WHEN active = 0 THEN 1 ELSE 0 END), 0)
			FROM documents
			WHERE collection_id = ?
		`, c.ID).Scan(&cs.ActiveDocuments, &cs.InactiveDocuments)
		if err != nil {
			return nil, err
		}
		status.Collections = append(status.Collections, cs)
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN active = 1 THEN 1 ELSE 0 END), 0)
		FROM documents
	`).Scan(&status.TotalDocuments, &status.ActiveDocuments)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(DISTINCT hash) FROM content_vectors`).
		Scan(&status.Vectors, &status.EmbeddedHashes)
	if err != nil {
		return nil, err
	}

	if status.NeedsEmbedding, err = s.CountNeedsEmbedding(ctx); err != nil {
		return nil, err
	}
	if status.CacheEntries, err = s.cache.Count(ctx); err != nil {
		return nil, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM path_contexts`).Scan(&status.PathContexts); err != nil {
		return nil, err
	}

	info, err := s.GetVectorInfo(ctx)
	if err != nil {
		return nil, err
	}
	status.VectorDimension = info.Dimension
	status.VectorModel = info.Model

	// Most recent update of any collection
	var last sql.NullTime
	err = s.db.QueryRowContext(ctx, `SELECT updated_at FROM collections ORDER BY updated_at DESC LIMIT 1`).Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	if last.Valid {
		status.LastUpdatedAt = last.Time
	}

	// Calculate database size
	var pageCount, pageSize int
	err = s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount)
	if err == nil {
		_ = s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	status.Health = HealthStatus{
		DatabaseAccessible:  true,
		EmbeddingsAvailable: status.Vectors > 0,
		FTSIndexBuilt:       true, // FTS index is created with migrations
	}

	return status, nil
}
