// Package indexer keeps the index in step with collections on disk.
//
// A collection is a root directory scanned with a doublestar glob. Update
// diffs the matching files against the collection's active documents by path
// and content fingerprint:
//
//	no active document at the path  -> insert (indexed)
//	different fingerprint           -> replace body, hash, title (updated)
//	same fingerprint                -> nothing (unchanged)
//	active document, file gone      -> deactivate (removed)
//
// Documents are never deleted. A path that reappears reactivates its row.
// Running Update twice without file changes reports everything unchanged.
//
// # Basic Usage
//
//	idx := indexer.New(store, chunker, client, indexer.Config{EmbedModel: "embeddinggemma"}, logger)
//
//	coll, err := idx.AddCollection(ctx, "notes", "~/notes", "**/*.md")
//	stats, err := idx.Update(ctx, coll)
//	fmt.Printf("%d new, %d updated, %d to embed\n", stats.Indexed, stats.Updated, stats.NeedsEmbedding)
//
//	embedStats, err := idx.Embed(ctx, false)
//
// # Embedding
//
// Vectors are keyed by fingerprint, so documents with identical content share
// them and an unchanged file is never embedded twice. Embed first embeds one
// chunk to learn the model's dimension; if it differs from the stored vectors
// the vector table is rebuilt and everything is embedded again.
//
// # Error Handling
//
// A file that cannot be read or stored is counted in Statistics.Failed with
// its error in ErrorMessages; the rest of the collection is still indexed. A
// unique-constraint conflict with a concurrent indexer is resolved by reading
// the row the other writer stored.
//
// # Concurrency
//
// Index runs are sequential. Within one process the IndexLock lets only one
// of Update, Embed, Refresh and Cleanup run at a time; the others fail fast
// with ErrIndexInProgress. Across processes SQLite's WAL locking applies.
//
// Watcher runs Refresh after file changes settle, and the scheduler runs it
// on a cron schedule.
package indexer
