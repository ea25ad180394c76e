package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	// Use in-memory database for testing
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	return storage
}

func createTestCollection(t *testing.T, s *SQLiteStorage, name string) *Collection {
	t.Helper()
	c := &Collection{Name: name, Root: "/data/" + name, Glob: "**/*.md"}
	require.NoError(t, s.CreateCollection(context.Background(), c))
	return c
}

func insertTestDocument(t *testing.T, s *SQLiteStorage, c *Collection, path, title, body string) *Document {
	t.Helper()
	doc := &Document{
		CollectionID: c.ID,
		Path:         path,
		DisplayPath:  c.Name + "/" + path,
		Title:        title,
		Hash:         "hash-" + body,
		Body:         body,
		ModifiedAt:   time.Now(),
	}
	require.NoError(t, s.InsertDocument(context.Background(), doc))
	return doc
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	assert.NotNil(t, storage)
	assert.NotNil(t, storage.db)
	assert.NotNil(t, storage.Cache())
}

func TestClose(t *testing.T) {
	storage := setupTestDB(t)
	err := storage.Close()
	assert.NoError(t, err)
}

func TestCreateCollection(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	c := createTestCollection(t, storage, "notes")
	assert.Greater(t, c.ID, int64(0))

	// Same name
	err := storage.CreateCollection(ctx, &Collection{Name: "notes", Root: "/elsewhere", Glob: "*.txt"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Same scope
	err = storage.CreateCollection(ctx, &Collection{Name: "other", Root: c.Root, Glob: c.Glob})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestGetCollection(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	c := createTestCollection(t, storage, "notes")

	byName, err := storage.GetCollection(ctx, "notes")
	require.NoError(t, err)
	assert.Equal(t, c.ID, byName.ID)
	assert.Equal(t, c.Root, byName.Root)

	byScope, err := storage.GetCollectionByScope(ctx, c.Root, c.Glob)
	require.NoError(t, err)
	assert.Equal(t, c.ID, byScope.ID)

	_, err = storage.GetCollection(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListCollections(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	createTestCollection(t, storage, "zeta")
	createTestCollection(t, storage, "alpha")

	collections, err := storage.ListCollections(context.Background())
	require.NoError(t, err)
	require.Len(t, collections, 2)
	assert.Equal(t, "alpha", collections[0].Name)
	assert.Equal(t, "zeta", collections[1].Name)
}

func TestInsertDocument(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	c := createTestCollection(t, storage, "notes")
	doc := insertTestDocument(t, storage, c, "a.md", "Alpha", "alpha body")
	assert.Greater(t, doc.ID, int64(0))
	assert.True(t, doc.Active)

	got, err := storage.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "notes/a.md", got.DisplayPath)
	assert.Equal(t, "alpha body", got.Body)
	assert.Equal(t, c.ID, got.CollectionID)

	// A second active row for the same path is a lost race
	dup := &Document{CollectionID: c.ID, Path: "a.md", DisplayPath: "notes/a.md", Hash: "h", Body: "x"}
	err = storage.InsertDocument(ctx, dup)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestInsertDocument_ReactivatesInactive(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	c := createTestCollection(t, storage, "notes")
	doc := insertTestDocument(t, storage, c, "a.md", "Alpha", "old body")
	require.NoError(t, storage.DeactivateDocument(ctx, doc.ID))

	_, err := storage.GetActiveDocument(ctx, c.ID, "a.md")
	assert.ErrorIs(t, err, ErrNotFound)

	again := insertTestDocument(t, storage, c, "a.md", "Alpha", "new body")
	assert.Equal(t, doc.ID, again.ID)

	got, err := storage.GetActiveDocument(ctx, c.ID, "a.md")
	require.NoError(t, err)
	assert.Equal(t, "hash-new body", got.Hash)
}

func TestUpdateDocumentContent(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	c := createTestCollection(t, storage, "notes")
	doc := insertTestDocument(t, storage, c, "a.md", "Alpha", "alpha body")

	doc.Title = "Alpha v2"
	doc.Body = "rewritten"
	doc.Hash = "hash-rewritten"
	require.NoError(t, storage.UpdateDocumentContent(ctx, doc))

	got, err := storage.GetDocumentByDisplayPath(ctx, "notes/a.md")
	require.NoError(t, err)
	assert.Equal(t, "Alpha v2", got.Title)
	assert.Equal(t, "rewritten", got.Body)

	require.NoError(t, storage.DeactivateDocument(ctx, doc.ID))
	assert.ErrorIs(t, storage.UpdateDocumentContent(ctx, doc), ErrNotFound)
}

func TestListActiveDocuments(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	c := createTestCollection(t, storage, "notes")
	insertTestDocument(t, storage, c, "b.md", "B", "b")
	gone := insertTestDocument(t, storage, c, "a.md", "A", "a")
	insertTestDocument(t, storage, c, "c.md", "C", "c")
	require.NoError(t, storage.DeactivateDocument(ctx, gone.ID))

	docs, err := storage.ListActiveDocuments(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b.md", docs[0].Path)
	assert.Equal(t, "c.md", docs[1].Path)
	assert.Empty(t, docs[0].Body)
}

func TestDeleteCollection(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	c := createTestCollection(t, storage, "notes")
	doc := insertTestDocument(t, storage, c, "a.md", "A", "a")
	insertTestDocument(t, storage, c, "b.md", "B", "b")

	deactivated, err := storage.DeleteCollection(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, deactivated)

	// Documents survive, detached and inactive
	got, err := storage.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, int64(0), got.CollectionID)

	_, err = storage.GetCollection(ctx, "notes")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = storage.DeleteCollection(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBeginTx_CommitRollback(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	c := createTestCollection(t, storage, "notes")

	// Rolled back insert is not visible
	tx, err := storage.BeginTx(ctx)
	require.NoError(t, err)
	doc := &Document{CollectionID: c.ID, Path: "a.md", DisplayPath: "notes/a.md", Hash: "h1", Body: "one"}
	require.NoError(t, tx.InsertDocument(ctx, doc))
	require.NoError(t, tx.Rollback())

	_, err = storage.GetActiveDocument(ctx, c.ID, "a.md")
	assert.ErrorIs(t, err, ErrNotFound)

	// Committed insert is
	tx, err = storage.BeginTx(ctx)
	require.NoError(t, err)
	doc = &Document{CollectionID: c.ID, Path: "a.md", DisplayPath: "notes/a.md", Hash: "h1", Body: "one"}
	require.NoError(t, tx.InsertDocument(ctx, doc))
	inTx, err := tx.GetActiveDocument(ctx, c.ID, "a.md")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, inTx.ID)
	require.NoError(t, tx.Commit())

	_, err = storage.GetActiveDocument(ctx, c.ID, "a.md")
	assert.NoError(t, err)
}

func TestLLMCache(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	cache := storage.Cache()

	_, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Put(ctx, "k", []byte("v1")))
	require.NoError(t, cache.Put(ctx, "k", []byte("v2")))
	v, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v2"), v)

	n, err := cache.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	cleared, err := cache.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cleared)
	_, ok, _ = cache.Get(ctx, "k")
	assert.False(t, ok)
}

func TestPathContexts(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, storage.SetPathContext(ctx, "", "personal knowledge base"))
	require.NoError(t, storage.SetPathContext(ctx, "notes", "meeting notes"))
	require.NoError(t, storage.SetPathContext(ctx, "/notes/infra/", "infrastructure notes"))

	tests := []struct {
		path string
		want string
	}{
		{"notes/infra/docker.md", "infrastructure notes"},
		{"notes/standup.md", "meeting notes"},
		{"notes2/other.md", "personal knowledge base"},
		{"docs/readme.md", "personal knowledge base"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			pc, err := storage.FindPathContext(ctx, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, pc.Context)
		})
	}

	contexts, err := storage.ListPathContexts(ctx)
	require.NoError(t, err)
	require.Len(t, contexts, 3)
	assert.Equal(t, "notes/infra", contexts[2].Prefix)

	require.NoError(t, storage.DeletePathContext(ctx, ""))
	_, err = storage.FindPathContext(ctx, "docs/readme.md")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, storage.DeletePathContext(ctx, "missing"), ErrNotFound)
}

func TestGetStatus(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	c := createTestCollection(t, storage, "notes")
	insertTestDocument(t, storage, c, "a.md", "A", "a")
	gone := insertTestDocument(t, storage, c, "b.md", "B", "b")
	require.NoError(t, storage.DeactivateDocument(ctx, gone.ID))
	require.NoError(t, storage.Cache().Put(ctx, "k", []byte("v")))

	status, err := storage.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.TotalDocuments)
	assert.Equal(t, 1, status.ActiveDocuments)
	assert.Equal(t, 1, status.NeedsEmbedding)
	assert.Equal(t, 1, status.CacheEntries)
	require.Len(t, status.Collections, 1)
	assert.Equal(t, 1, status.Collections[0].ActiveDocuments)
	assert.Equal(t, 1, status.Collections[0].InactiveDocuments)
	assert.True(t, status.Health.DatabaseAccessible)
	assert.False(t, status.Health.EmbeddingsAvailable)
}

func TestApplyMigrations_Idempotent(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()

	ctx := context.Background()
	require.NoError(t, ApplyMigrations(ctx, storage.db))

	version, err := currentVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version.String())

	var applied int
	require.NoError(t, storage.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&applied))
	assert.Equal(t, len(AllMigrations), applied)
}

func TestRollbackMigration(t *testing.T) {
	storage := setupTestDB(t)
	defer storage.Close()
	ctx := context.Background()

	tableExists := func(name string) bool {
		var n int
		require.NoError(t, storage.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n))
		return n == 1
	}
	require.True(t, tableExists("path_contexts"))

	require.NoError(t, RollbackMigration(ctx, storage.db))
	assert.False(t, tableExists("path_contexts"))
	assert.False(t, tableExists("llm_cache"))

	version, err := currentVersion(ctx, storage.db)
	require.NoError(t, err)
	assert.Equal(t, AllMigrations[len(AllMigrations)-2].Version, version.String())

	// Re-applying restores the latest schema
	require.NoError(t, ApplyMigrations(ctx, storage.db))
	assert.True(t, tableExists("path_contexts"))
}
