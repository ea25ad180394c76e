package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// busyTimeoutMillis bounds how long a writer waits on another process holding the lock
const busyTimeoutMillis = 5000

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db    *sql.DB
	cache *LLMCache
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Other processes may be indexing the same file
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMillis)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db, cache: &LLMCache{db: db}}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// withTx runs fn in a transaction, committing when it returns nil
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// rowScanner is implemented by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
// Both drivers surface the SQLite message text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Collection operations

// createCollectionWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) createCollectionWithQuerier(ctx context.Context, q querier, collection *Collection) error {
	query := `
		INSERT INTO collections (name, root, glob, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query, collection.Name, collection.Root, collection.Glob, now, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("collection %q (%s, %s): %w", collection.Name, collection.Root, collection.Glob, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	collection.ID = id
	collection.CreatedAt = now
	collection.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) CreateCollection(ctx context.Context, collection *Collection) error {
	return s.createCollectionWithQuerier(ctx, s.querier(), collection)
}

const collectionColumns = `id, name, root, glob, created_at, updated_at`

func scanCollection(row rowScanner) (*Collection, error) {
	var c Collection
	err := row.Scan(&c.ID, &c.Name, &c.Root, &c.Glob, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// getCollectionWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getCollectionWithQuerier(ctx context.Context, q querier, name string) (*Collection, error) {
	query := `SELECT ` + collectionColumns + ` FROM collections WHERE name = ?`
	return scanCollection(q.QueryRowContext(ctx, query, name))
}

func (s *SQLiteStorage) GetCollection(ctx context.Context, name string) (*Collection, error) {
	return s.getCollectionWithQuerier(ctx, s.querier(), name)
}

// getCollectionByScopeWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getCollectionByScopeWithQuerier(ctx context.Context, q querier, root, glob string) (*Collection, error) {
	query := `SELECT ` + collectionColumns + ` FROM collections WHERE root = ? AND glob = ?`
	return scanCollection(q.QueryRowContext(ctx, query, root, glob))
}

func (s *SQLiteStorage) GetCollectionByScope(ctx context.Context, root, glob string) (*Collection, error) {
	return s.getCollectionByScopeWithQuerier(ctx, s.querier(), root, glob)
}

// listCollectionsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listCollectionsWithQuerier(ctx context.Context, q querier) ([]*Collection, error) {
	query := `SELECT ` + collectionColumns + ` FROM collections ORDER BY name`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	collections := make([]*Collection, 0)
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		collections = append(collections, c)
	}
	return collections, rows.Err()
}

func (s *SQLiteStorage) ListCollections(ctx context.Context) ([]*Collection, error) {
	return s.listCollectionsWithQuerier(ctx, s.querier())
}

// touchCollectionWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) touchCollectionWithQuerier(ctx context.Context, q querier, collectionID int64) error {
	result, err := q.ExecContext(ctx, `UPDATE collections SET updated_at = ? WHERE id = ?`, time.Now(), collectionID)
	if err != nil {
		return fmt.Errorf("failed to touch collection: %w", err)
	}
	return requireAffected(result)
}

func (s *SQLiteStorage) TouchCollection(ctx context.Context, collectionID int64) error {
	return s.touchCollectionWithQuerier(ctx, s.querier(), collectionID)
}

// deleteCollectionWithQuerier deactivates the collection's documents and removes it.
// The foreign key detaches the documents; they are never deleted.
func (s *SQLiteStorage) deleteCollectionWithQuerier(ctx context.Context, q querier, collectionID int64) (int, error) {
	result, err := q.ExecContext(ctx,
		`UPDATE documents SET active = 0, updated_at = ? WHERE collection_id = ? AND active = 1`,
		time.Now(), collectionID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate documents: %w", err)
	}
	deactivated, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	result, err = q.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, collectionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete collection: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return 0, err
	}
	return int(deactivated), nil
}

func (s *SQLiteStorage) DeleteCollection(ctx context.Context, collectionID int64) (int, error) {
	var deactivated int
	err := s.withTx(ctx, func(q querier) error {
		var err error
		deactivated, err = s.deleteCollectionWithQuerier(ctx, q, collectionID)
		return err
	})
	return deactivated, err
}

// Document operations

// documentColumns excludes the body, which listings and search hits do not need
const documentColumns = `d.id, d.collection_id, d.path, d.display_path, d.title, d.hash,
		       d.active, d.modified_at, d.created_at, d.updated_at`

func scanDocument(row rowScanner, extra ...interface{}) (*Document, error) {
	var doc Document
	var collectionID sql.NullInt64
	var modifiedAt sql.NullTime
	dest := []interface{}{
		&doc.ID, &collectionID, &doc.Path, &doc.DisplayPath, &doc.Title, &doc.Hash,
		&doc.Active, &modifiedAt, &doc.CreatedAt, &doc.UpdatedAt,
	}
	err := row.Scan(append(dest, extra...)...)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if collectionID.Valid {
		doc.CollectionID = collectionID.Int64
	}
	if modifiedAt.Valid {
		doc.ModifiedAt = modifiedAt.Time
	}
	return &doc, nil
}

// getDocumentWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getDocumentWithQuerier(ctx context.Context, q querier, documentID int64) (*Document, error) {
	query := `SELECT ` + documentColumns + `, d.body FROM documents d WHERE d.id = ?`
	var body string
	doc, err := scanDocument(q.QueryRowContext(ctx, query, documentID), &body)
	if err != nil {
		return nil, err
	}
	doc.Body = body
	return doc, nil
}

func (s *SQLiteStorage) GetDocument(ctx context.Context, documentID int64) (*Document, error) {
	return s.getDocumentWithQuerier(ctx, s.querier(), documentID)
}

// getActiveDocumentWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getActiveDocumentWithQuerier(ctx context.Context, q querier, collectionID int64, path string) (*Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents d
		WHERE d.collection_id = ? AND d.path = ? AND d.active = 1
	`
	return scanDocument(q.QueryRowContext(ctx, query, collectionID, path))
}

func (s *SQLiteStorage) GetActiveDocument(ctx context.Context, collectionID int64, path string) (*Document, error) {
	return s.getActiveDocumentWithQuerier(ctx, s.querier(), collectionID, path)
}

// getDocumentByDisplayPathWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getDocumentByDisplayPathWithQuerier(ctx context.Context, q querier, displayPath string) (*Document, error) {
	query := `
		SELECT ` + documentColumns + `, d.body
		FROM documents d
		WHERE d.display_path = ? AND d.active = 1
		ORDER BY d.id DESC
		LIMIT 1
	`
	var body string
	doc, err := scanDocument(q.QueryRowContext(ctx, query, displayPath), &body)
	if err != nil {
		return nil, err
	}
	doc.Body = body
	return doc, nil
}

func (s *SQLiteStorage) GetDocumentByDisplayPath(ctx context.Context, displayPath string) (*Document, error) {
	return s.getDocumentByDisplayPathWithQuerier(ctx, s.querier(), displayPath)
}

// insertDocumentWithQuerier inserts a new active document or reactivates an
// inactive row for the same path. An active row for the path means another
// writer got there first and yields ErrAlreadyExists.
func (s *SQLiteStorage) insertDocumentWithQuerier(ctx context.Context, q querier, doc *Document) error {
	query := `
		INSERT INTO documents (collection_id, path, display_path, title, hash, body, active, modified_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(collection_id, path) DO UPDATE SET
			display_path = excluded.display_path,
			title = excluded.title,
			hash = excluded.hash,
			body = excluded.body,
			active = 1,
			modified_at = excluded.modified_at,
			updated_at = excluded.updated_at
		WHERE documents.active = 0
		RETURNING id
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		doc.CollectionID, doc.Path, doc.DisplayPath, doc.Title, doc.Hash, doc.Body,
		nullTime(doc.ModifiedAt), now, now).Scan(&doc.ID)
	if err == sql.ErrNoRows || isUniqueViolation(err) {
		return fmt.Errorf("document %s: %w", doc.DisplayPath, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	doc.Active = true
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) InsertDocument(ctx context.Context, doc *Document) error {
	return s.insertDocumentWithQuerier(ctx, s.querier(), doc)
}

// updateDocumentContentWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) updateDocumentContentWithQuerier(ctx context.Context, q querier, doc *Document) error {
	query := `
		UPDATE documents
		SET display_path = ?, title = ?, hash = ?, body = ?, modified_at = ?, updated_at = ?
		WHERE id = ? AND active = 1
	`
	now := time.Now()
	result, err := q.ExecContext(ctx, query,
		doc.DisplayPath, doc.Title, doc.Hash, doc.Body, nullTime(doc.ModifiedAt), now, doc.ID)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if err := requireAffected(result); err != nil {
		return err
	}
	doc.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpdateDocumentContent(ctx context.Context, doc *Document) error {
	return s.updateDocumentContentWithQuerier(ctx, s.querier(), doc)
}

// setDisplayPathWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) setDisplayPathWithQuerier(ctx context.Context, q querier, documentID int64, displayPath string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE documents SET display_path = ?, updated_at = ? WHERE id = ?`,
		displayPath, time.Now(), documentID)
	if err != nil {
		return fmt.Errorf("failed to set display path: %w", err)
	}
	return requireAffected(result)
}

func (s *SQLiteStorage) SetDisplayPath(ctx context.Context, documentID int64, displayPath string) error {
	return s.setDisplayPathWithQuerier(ctx, s.querier(), documentID, displayPath)
}

// listActiveDocumentsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listActiveDocumentsWithQuerier(ctx context.Context, q querier, collectionID int64) ([]*Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM documents d
		WHERE d.collection_id = ? AND d.active = 1
		ORDER BY d.path
	`
	rows, err := q.QueryContext(ctx, query, collectionID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	docs := make([]*Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStorage) ListActiveDocuments(ctx context.Context, collectionID int64) ([]*Document, error) {
	return s.listActiveDocumentsWithQuerier(ctx, s.querier(), collectionID)
}

// deactivateDocumentWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deactivateDocumentWithQuerier(ctx context.Context, q querier, documentID int64) error {
	result, err := q.ExecContext(ctx,
		`UPDATE documents SET active = 0, updated_at = ? WHERE id = ? AND active = 1`,
		time.Now(), documentID)
	if err != nil {
		return fmt.Errorf("failed to deactivate document: %w", err)
	}
	return requireAffected(result)
}

func (s *SQLiteStorage) DeactivateDocument(ctx context.Context, documentID int64) error {
	return s.deactivateDocumentWithQuerier(ctx, s.querier(), documentID)
}

// Cache returns the model response cache stored alongside the index
func (s *SQLiteStorage) Cache() *LLMCache {
	return s.cache
}

// Vacuum reclaims space left by deleted rows
func (s *SQLiteStorage) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}
	return nil
}

// requireAffected maps an update that touched no rows to ErrNotFound
func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// Transaction implementations delegate to the querier-based helpers

func (t *sqliteTx) CreateCollection(ctx context.Context, collection *Collection) error {
	return t.storage.createCollectionWithQuerier(ctx, t.querier(), collection)
}

func (t *sqliteTx) GetCollection(ctx context.Context, name string) (*Collection, error) {
	return t.storage.getCollectionWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) GetCollectionByScope(ctx context.Context, root, glob string) (*Collection, error) {
	return t.storage.getCollectionByScopeWithQuerier(ctx, t.querier(), root, glob)
}

func (t *sqliteTx) ListCollections(ctx context.Context) ([]*Collection, error) {
	return t.storage.listCollectionsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) TouchCollection(ctx context.Context, collectionID int64) error {
	return t.storage.touchCollectionWithQuerier(ctx, t.querier(), collectionID)
}

func (t *sqliteTx) DeleteCollection(ctx context.Context, collectionID int64) (int, error) {
	return t.storage.deleteCollectionWithQuerier(ctx, t.querier(), collectionID)
}

func (t *sqliteTx) GetDocument(ctx context.Context, documentID int64) (*Document, error) {
	return t.storage.getDocumentWithQuerier(ctx, t.querier(), documentID)
}

func (t *sqliteTx) GetActiveDocument(ctx context.Context, collectionID int64, path string) (*Document, error) {
	return t.storage.getActiveDocumentWithQuerier(ctx, t.querier(), collectionID, path)
}

func (t *sqliteTx) GetDocumentByDisplayPath(ctx context.Context, displayPath string) (*Document, error) {
	return t.storage.getDocumentByDisplayPathWithQuerier(ctx, t.querier(), displayPath)
}

func (t *sqliteTx) InsertDocument(ctx context.Context, doc *Document) error {
	return t.storage.insertDocumentWithQuerier(ctx, t.querier(), doc)
}

func (t *sqliteTx) UpdateDocumentContent(ctx context.Context, doc *Document) error {
	return t.storage.updateDocumentContentWithQuerier(ctx, t.querier(), doc)
}

func (t *sqliteTx) SetDisplayPath(ctx context.Context, documentID int64, displayPath string) error {
	return t.storage.setDisplayPathWithQuerier(ctx, t.querier(), documentID, displayPath)
}

func (t *sqliteTx) ListActiveDocuments(ctx context.Context, collectionID int64) ([]*Document, error) {
	return t.storage.listActiveDocumentsWithQuerier(ctx, t.querier(), collectionID)
}

func (t *sqliteTx) DeactivateDocument(ctx context.Context, documentID int64) error {
	return t.storage.deactivateDocumentWithQuerier(ctx, t.querier(), documentID)
}
