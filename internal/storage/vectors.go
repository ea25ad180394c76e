package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

const (
	metaDimension = "dimension"
	metaModel     = "model"
)

// vectorTableSQL creates content_vectors pinned to a single dimension
func vectorTableSQL(dimension int) string {
	return fmt.Sprintf(`
CREATE TABLE content_vectors (
    hash TEXT NOT NULL,
    seq INTEGER NOT NULL,
    pos INTEGER NOT NULL,
    model TEXT NOT NULL,
    dimension INTEGER NOT NULL CHECK (dimension = %d),
    embedding BLOB NOT NULL CHECK (length(embedding) = %d),
    embedded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (hash, seq)
)`, dimension, dimension*4)
}

// insertVectorWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) insertVectorWithQuerier(ctx context.Context, q querier, vector *Vector) error {
	if len(vector.Embedding) == 0 {
		return fmt.Errorf("vector %s/%d has no values", vector.Hash, vector.Seq)
	}
	query := `
		INSERT INTO content_vectors (hash, seq, pos, model, dimension, embedding, embedded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash, seq) DO UPDATE SET
			pos = excluded.pos,
			model = excluded.model,
			dimension = excluded.dimension,
			embedding = excluded.embedding,
			embedded_at = excluded.embedded_at
	`
	if vector.EmbeddedAt.IsZero() {
		vector.EmbeddedAt = time.Now()
	}
	_, err := q.ExecContext(ctx, query,
		vector.Hash, vector.Seq, vector.Pos, vector.Model, len(vector.Embedding),
		serializeVector(vector.Embedding), vector.EmbeddedAt)
	if err != nil {
		return fmt.Errorf("failed to insert vector %s/%d: %w", vector.Hash, vector.Seq, err)
	}
	return nil
}

func (s *SQLiteStorage) InsertVector(ctx context.Context, vector *Vector) error {
	return s.insertVectorWithQuerier(ctx, s.querier(), vector)
}

// ListVectors returns the vectors of a fingerprint ordered by sequence
func (s *SQLiteStorage) ListVectors(ctx context.Context, hash string) ([]*Vector, error) {
	query := `
		SELECT hash, seq, pos, model, embedding, embedded_at
		FROM content_vectors
		WHERE hash = ?
		ORDER BY seq
	`
	rows, err := s.db.QueryContext(ctx, query, hash)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	vectors := make([]*Vector, 0)
	for rows.Next() {
		var v Vector
		var blob []byte
		if err := rows.Scan(&v.Hash, &v.Seq, &v.Pos, &v.Model, &blob, &v.EmbeddedAt); err != nil {
			return nil, err
		}
		v.Embedding = deserializeVector(blob)
		vectors = append(vectors, &v)
	}
	return vectors, rows.Err()
}

// deleteVectorsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deleteVectorsWithQuerier(ctx context.Context, q querier, hash string) (int, error) {
	result, err := q.ExecContext(ctx, `DELETE FROM content_vectors WHERE hash = ?`, hash)
	if err != nil {
		return 0, fmt.Errorf("failed to delete vectors: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

func (s *SQLiteStorage) DeleteVectors(ctx context.Context, hash string) (int, error) {
	return s.deleteVectorsWithQuerier(ctx, s.querier(), hash)
}

func (s *SQLiteStorage) HasVectors(ctx context.Context, hash string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM content_vectors WHERE hash = ?)`, hash).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists == 1, nil
}

// ReplaceVectors swaps every vector of a fingerprint in one transaction, so
// readers never observe a partial chunk set
func (s *SQLiteStorage) ReplaceVectors(ctx context.Context, hash string, vectors []*Vector) error {
	return s.withTx(ctx, func(q querier) error {
		if _, err := s.deleteVectorsWithQuerier(ctx, q, hash); err != nil {
			return err
		}
		for _, v := range vectors {
			if v.Hash != hash {
				return fmt.Errorf("vector for %s passed to replace %s", v.Hash, hash)
			}
			if err := s.insertVectorWithQuerier(ctx, q, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// ClearVectors removes every stored vector, keeping the table dimension
func (s *SQLiteStorage) ClearVectors(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM content_vectors`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear vectors: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// EnsureVectorTable pins the vector table to dimension. A different stored
// dimension drops every vector and recreates the table; rebuilt reports that
// previously embedded content must be embedded again.
func (s *SQLiteStorage) EnsureVectorTable(ctx context.Context, dimension int, model string) (bool, error) {
	if dimension <= 0 {
		return false, fmt.Errorf("invalid vector dimension %d", dimension)
	}

	var rebuilt bool
	err := s.withTx(ctx, func(q querier) error {
		stored, err := readMetaInt(ctx, q, metaDimension)
		if err != nil {
			return err
		}

		if stored != dimension {
			var existing int
			if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_vectors`).Scan(&existing); err != nil {
				return err
			}
			if _, err := q.ExecContext(ctx, `DROP TABLE IF EXISTS content_vectors`); err != nil {
				return fmt.Errorf("failed to drop vector table: %w", err)
			}
			if _, err := q.ExecContext(ctx, vectorTableSQL(dimension)); err != nil {
				return fmt.Errorf("failed to create vector table: %w", err)
			}
			if err := writeMeta(ctx, q, metaDimension, strconv.Itoa(dimension)); err != nil {
				return err
			}
			rebuilt = existing > 0
		}
		return writeMeta(ctx, q, metaModel, model)
	})
	if err != nil {
		return false, err
	}
	return rebuilt, nil
}

func (s *SQLiteStorage) GetVectorInfo(ctx context.Context) (*VectorInfo, error) {
	q := s.querier()
	dimension, err := readMetaInt(ctx, q, metaDimension)
	if err != nil {
		return nil, err
	}
	model, err := readMeta(ctx, q, metaModel)
	if err != nil {
		return nil, err
	}
	info := &VectorInfo{Dimension: dimension, Model: model}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM content_vectors`).Scan(&info.Count); err != nil {
		return nil, err
	}
	return info, nil
}

// ListNeedsEmbedding returns one active document per fingerprint that has no vectors
func (s *SQLiteStorage) ListNeedsEmbedding(ctx context.Context) ([]*PendingDocument, error) {
	query := `
		SELECT hash, title, body, display_path
		FROM documents
		WHERE id IN (
			SELECT MIN(d.id)
			FROM documents d
			WHERE d.active = 1
			AND NOT EXISTS (SELECT 1 FROM content_vectors v WHERE v.hash = d.hash)
			GROUP BY d.hash
		)
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	pending := make([]*PendingDocument, 0)
	for rows.Next() {
		var p PendingDocument
		if err := rows.Scan(&p.Hash, &p.Title, &p.Body, &p.DisplayPath); err != nil {
			return nil, err
		}
		pending = append(pending, &p)
	}
	return pending, rows.Err()
}

// CountNeedsEmbedding counts distinct active fingerprints without vectors
func (s *SQLiteStorage) CountNeedsEmbedding(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT d.hash)
		FROM documents d
		WHERE d.active = 1
		AND NOT EXISTS (SELECT 1 FROM content_vectors v WHERE v.hash = d.hash)
	`).Scan(&n)
	return n, err
}

// DeleteOrphanVectors removes vectors whose fingerprint no active document carries
func (s *SQLiteStorage) DeleteOrphanVectors(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM content_vectors
		WHERE hash NOT IN (SELECT hash FROM documents WHERE active = 1)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphan vectors: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

func readMeta(ctx context.Context, q querier, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM vector_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func readMetaInt(ctx context.Context, q querier, key string) (int, error) {
	value, err := readMeta(ctx, q, key)
	if err != nil || value == "" {
		return 0, err
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid vector_meta %s %q: %w", key, value, err)
	}
	return n, nil
}

func writeMeta(ctx context.Context, q querier, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO vector_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write vector_meta %s: %w", key, err)
	}
	return nil
}
