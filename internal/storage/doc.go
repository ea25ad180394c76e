// Package storage provides SQLite-based persistence for the document index.
//
// The storage layer manages:
//   - Collections (root directory + glob pattern)
//   - Documents with their content fingerprints
//   - Chunk vectors keyed by fingerprint
//   - The FTS5 full-text index
//   - Cached model responses
//   - Path contexts
//
// # Database Schema
//
// Tables:
//   - collections: name, root and glob, unique per (root, glob)
//   - documents: one row per (collection, path); inactive rows are kept
//   - documents_fts: FTS5 index over title and body, kept in sync by triggers
//   - content_vectors: (hash, seq) -> embedding, pinned to one dimension
//   - vector_meta: vector table dimension and model
//   - llm_cache: model responses keyed by request digest
//   - path_contexts: free text attached to path prefixes
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("~/.cache/docsearch/index.sqlite")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	coll := &storage.Collection{Name: "notes", Root: "/home/me/notes", Glob: "**/*.md"}
//	if err := store.CreateCollection(ctx, coll); err != nil {
//	    return err
//	}
//
// # Transactions
//
// Use transactions for batches of document writes:
//
//	tx, err := store.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer tx.Rollback()
//
//	if err := tx.InsertDocument(ctx, doc); err != nil {
//	    return err
//	}
//	return tx.Commit()
//
// # Concurrency
//
// The database runs in WAL mode with a busy timeout, so several processes can
// share one index file. Unique-constraint races during inserts surface as
// ErrAlreadyExists; callers re-read and continue.
//
// # Vector Search
//
// Vector search uses cosine distance via the sqlite-vec extension (CGO build)
// or a Go fallback over every stored vector (purego build):
//
//	hits, err := store.SearchVector(ctx, queryVector, 30, nil)
//
// The vector table accepts a single dimension. EnsureVectorTable rebuilds it
// when the embedding model changes dimension.
//
// # Build Modes
//
// CGO Build (sqlite_vec tag):
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec"
//
// Pure Go Build (default):
//
//	CGO_ENABLED=0 go build -tags "purego"
package storage
