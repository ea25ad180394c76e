package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
)

// ErrEmptyQuery is returned when a text query has no searchable terms
var ErrEmptyQuery = errors.New("empty search query")

// hitColumns selects the owning document of a match
const hitColumns = `d.id, d.collection_id, d.path, d.display_path, d.title, d.hash,
		       d.active, d.modified_at, d.created_at, d.updated_at, COALESCE(c.name, '')`

// SearchVector returns the limit vectors closest to the query, joined with the
// active documents that carry them. One document may appear once per chunk.
func (s *SQLiteStorage) SearchVector(ctx context.Context, queryVector []float32, limit int, filter *SearchFilter) ([]VectorHit, error) {
	if limit <= 0 || len(queryVector) == 0 {
		return []VectorHit{}, nil
	}
	// Use optimized SQL-based search when sqlite-vec is available
	if VectorExtensionAvailable {
		return s.searchVectorOptimized(ctx, queryVector, limit, filter)
	}
	// Fall back to Go-based computation for purego builds
	return s.searchVectorFallback(ctx, queryVector, limit, filter)
}

// searchVectorOptimized uses sqlite-vec extension for SQL-based vector similarity search
func (s *SQLiteStorage) searchVectorOptimized(ctx context.Context, queryVector []float32, limit int, filter *SearchFilter) ([]VectorHit, error) {
	query := `
		SELECT ` + hitColumns + `, v.seq, v.pos,
		       vec_distance_cosine(v.embedding, ?) AS distance
		FROM content_vectors v
		INNER JOIN documents d ON d.hash = v.hash AND d.active = 1
		LEFT JOIN collections c ON c.id = d.collection_id
		WHERE v.dimension = ?
	`
	args := []interface{}{serializeVector(queryVector), len(queryVector)}
	query, args = applyFilter(query, args, filter)
	query += " ORDER BY distance, d.id, v.seq LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]VectorHit, 0, limit)
	for rows.Next() {
		var hit VectorHit
		doc, err := scanDocument(rows, &hit.Collection, &hit.Seq, &hit.Pos, &hit.Distance)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		hit.Document = *doc
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// searchVectorFallback performs vector search using Go-based cosine distance computation.
// This is used when sqlite-vec extension is not available (purego builds)
func (s *SQLiteStorage) searchVectorFallback(ctx context.Context, queryVector []float32, limit int, filter *SearchFilter) ([]VectorHit, error) {
	query := `
		SELECT ` + hitColumns + `, v.seq, v.pos, v.embedding
		FROM content_vectors v
		INNER JOIN documents d ON d.hash = v.hash AND d.active = 1
		LEFT JOIN collections c ON c.id = d.collection_id
		WHERE v.dimension = ?
	`
	args := []interface{}{len(queryVector)}
	query, args = applyFilter(query, args, filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits, err := computeDistances(rows, queryVector)
	if err != nil {
		return nil, err
	}

	sortHits(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// computeDistances scans candidate rows and computes cosine distance to the query
func computeDistances(rows *sql.Rows, queryVector []float32) ([]VectorHit, error) {
	hits := make([]VectorHit, 0, 256)
	for rows.Next() {
		var hit VectorHit
		var blob []byte
		doc, err := scanDocument(rows, &hit.Collection, &hit.Seq, &hit.Pos, &blob)
		if err != nil {
			return nil, err
		}

		vector := deserializeVector(blob)
		if len(vector) != len(queryVector) {
			continue // Dimension mismatch, skip
		}
		hit.Document = *doc
		hit.Distance = 1 - cosineSimilarity(queryVector, vector)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// sortHits orders by distance, then document and chunk for a stable order
func sortHits(hits []VectorHit) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		if hits[i].Document.ID != hits[j].Document.ID {
			return hits[i].Document.ID < hits[j].Document.ID
		}
		return hits[i].Seq < hits[j].Seq
	})
}

// SearchText performs BM25 full-text search over active documents. Title
// matches weigh ten times body matches. Scores are returned raw.
func (s *SQLiteStorage) SearchText(ctx context.Context, query string, limit int, filter *SearchFilter) ([]TextHit, error) {
	match := buildFTSQuery(query)
	if match == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		return []TextHit{}, nil
	}

	sqlQuery := `
		SELECT ` + hitColumns + `,
		       bm25(documents_fts, 10.0, 1.0) AS score,
		       snippet(documents_fts, 1, '', '', '...', 24)
		FROM documents_fts
		INNER JOIN documents d ON d.id = documents_fts.rowid
		LEFT JOIN collections c ON c.id = d.collection_id
		WHERE documents_fts MATCH ?
		AND d.active = 1
	`
	args := []interface{}{match}
	sqlQuery, args = applyFilter(sqlQuery, args, filter)

	// Order by BM25 score (lower is better) and limit
	sqlQuery += " ORDER BY score, d.id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hits := make([]TextHit, 0, limit)
	for rows.Next() {
		var hit TextHit
		doc, err := scanDocument(rows, &hit.Collection, &hit.Score, &hit.Snippet)
		if err != nil {
			return nil, err
		}
		hit.Document = *doc
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// Helper functions

// applyFilter adds WHERE clause filters shared by text and vector search
func applyFilter(query string, args []interface{}, filter *SearchFilter) (string, []interface{}) {
	if filter == nil {
		return query, args
	}
	if filter.CollectionID > 0 {
		query += " AND d.collection_id = ?"
		args = append(args, filter.CollectionID)
	}
	return query, args
}

// buildFTSQuery turns free text into an FTS5 query. Each word becomes a quoted
// prefix term, so operators and punctuation in user input are never interpreted.
// Terms are implicitly ANDed.
func buildFTSQuery(query string) string {
	words := strings.FieldsFunc(query, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(words) == 0 {
		return ""
	}
	terms := make([]string, len(words))
	for i, w := range words {
		terms[i] = `"` + w + `"*`
	}
	return strings.Join(terms, " ")
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// cosineSimilarity computes the cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// CosineSimilarity is an exported helper for testing
func CosineSimilarity(a, b []float32) float64 {
	return cosineSimilarity(a, b)
}
