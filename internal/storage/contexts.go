package storage

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// normalizePrefix trims surrounding slashes; the empty prefix matches every path
func normalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

// SetPathContext attaches context to a path prefix, replacing any previous text
func (s *SQLiteStorage) SetPathContext(ctx context.Context, prefix, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("context text must not be empty")
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO path_contexts (prefix, context, created_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(prefix) DO UPDATE SET context = excluded.context, updated_at = excluded.updated_at
	`, normalizePrefix(prefix), text, now, now)
	if err != nil {
		return fmt.Errorf("failed to set path context: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) DeletePathContext(ctx context.Context, prefix string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM path_contexts WHERE prefix = ?`, normalizePrefix(prefix))
	if err != nil {
		return fmt.Errorf("failed to delete path context: %w", err)
	}
	return requireAffected(result)
}

func (s *SQLiteStorage) ListPathContexts(ctx context.Context) ([]*PathContext, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT prefix, context, created_at, updated_at
		FROM path_contexts
		ORDER BY prefix
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	contexts := make([]*PathContext, 0)
	for rows.Next() {
		var pc PathContext
		if err := rows.Scan(&pc.Prefix, &pc.Context, &pc.CreatedAt, &pc.UpdatedAt); err != nil {
			return nil, err
		}
		contexts = append(contexts, &pc)
	}
	return contexts, rows.Err()
}

// FindPathContext returns the context with the longest prefix covering path.
// Prefixes match whole path segments: "notes" covers "notes/a.md" but not "notes2/a.md".
func (s *SQLiteStorage) FindPathContext(ctx context.Context, path string) (*PathContext, error) {
	contexts, err := s.ListPathContexts(ctx)
	if err != nil {
		return nil, err
	}

	path = strings.Trim(path, "/")
	var best *PathContext
	for _, pc := range contexts {
		if !coversPath(pc.Prefix, path) {
			continue
		}
		if best == nil || len(pc.Prefix) > len(best.Prefix) {
			best = pc
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func coversPath(prefix, path string) bool {
	if prefix == "" || prefix == path {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}
