package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/dshills/docsearch/internal/chunker"
	"github.com/dshills/docsearch/internal/logging"
	"github.com/dshills/docsearch/internal/storage"
)

const (
	// DefaultGlob matches markdown files anywhere below the root
	DefaultGlob = "**/*.md"

	// DefaultBatchSize is the number of files committed per transaction
	DefaultBatchSize = 20
)

// ErrIndexInProgress is returned when another run holds the index lock
var ErrIndexInProgress = errors.New("indexing already in progress")

// Embedder produces embeddings
type Embedder interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// Indexer keeps the stored documents of each collection in step with the
// file system and embeds what changed
type Indexer struct {
	storage  storage.Storage
	chunker  *chunker.Chunker
	embedder Embedder
	cfg      Config
	logger   *zap.Logger
	lock     IndexLock
	openFS   func(root string) fs.FS
}

// Config contains configuration for the indexer
type Config struct {
	EmbedModel string
	BatchSize  int // Number of files to commit per transaction (default: 20)
}

// Statistics contains statistics about an update run
type Statistics struct {
	Indexed        int // New paths, including reactivated ones
	Updated        int // Paths whose fingerprint changed
	Unchanged      int
	Removed        int // Active paths no longer on disk, now inactive
	Failed         int
	NeedsEmbedding int // Distinct fingerprints without vectors, index-wide
	Duration       time.Duration
	ErrorMessages  []string
}

// Changed reports whether the run modified any document
func (s *Statistics) Changed() bool {
	return s.Indexed+s.Updated+s.Removed > 0
}

// Add merges the counts of another run
func (s *Statistics) Add(o *Statistics) {
	s.Indexed += o.Indexed
	s.Updated += o.Updated
	s.Unchanged += o.Unchanged
	s.Removed += o.Removed
	s.Failed += o.Failed
	s.NeedsEmbedding = o.NeedsEmbedding
	s.Duration += o.Duration
	s.ErrorMessages = append(s.ErrorMessages, o.ErrorMessages...)
}

// outcome classifies one file
type outcome int

const (
	outcomeIndexed outcome = iota
	outcomeUpdated
	outcomeUnchanged
)

// New creates a new Indexer instance
func New(store storage.Storage, ch *chunker.Chunker, emb Embedder, cfg Config, logger *zap.Logger) *Indexer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Indexer{
		storage:  store,
		chunker:  ch,
		embedder: emb,
		cfg:      cfg,
		logger:   logging.OrNop(logger).With(zap.String("component", "indexer")),
		openFS:   os.DirFS,
	}
}

// Lock returns the lock guarding index runs
func (idx *Indexer) Lock() *IndexLock {
	return &idx.lock
}

// DisplayPath is the human-facing unique label of a document
func DisplayPath(collection, relPath string) string {
	return collection + "/" + filepath.ToSlash(relPath)
}

// AddCollection returns the collection for (root, glob), creating it on first
// use. An empty name defaults to the root's base name.
func (idx *Indexer) AddCollection(ctx context.Context, name, root, glob string) (*storage.Collection, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("collection root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("collection root %s is not a directory", root)
	}
	if glob == "" {
		glob = DefaultGlob
	}
	if !doublestar.ValidatePattern(glob) {
		return nil, fmt.Errorf("invalid glob pattern %q", glob)
	}
	if name == "" {
		name = filepath.Base(root)
	}

	existing, err := idx.storage.GetCollectionByScope(ctx, root, glob)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	collection := &storage.Collection{Name: name, Root: root, Glob: glob}
	err = idx.storage.CreateCollection(ctx, collection)
	if errors.Is(err, storage.ErrAlreadyExists) {
		// Either a concurrent add of the same scope or a name clash
		if existing, getErr := idx.storage.GetCollectionByScope(ctx, root, glob); getErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("collection name %q is taken: %w", name, err)
	}
	if err != nil {
		return nil, err
	}
	idx.logger.Info("collection created", zap.String("name", name), zap.String("root", root), zap.String("glob", glob))
	return collection, nil
}

// UpdateAll updates every collection under the index lock
func (idx *Indexer) UpdateAll(ctx context.Context) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.lock.Release()
	return idx.updateAll(ctx)
}

func (idx *Indexer) updateAll(ctx context.Context) (*Statistics, error) {
	collections, err := idx.storage.ListCollections(ctx)
	if err != nil {
		return nil, err
	}
	total := &Statistics{ErrorMessages: make([]string, 0)}
	for _, c := range collections {
		stats, err := idx.update(ctx, c)
		if err != nil {
			return total, fmt.Errorf("update %s: %w", c.Name, err)
		}
		total.Add(stats)
	}
	if len(collections) == 0 {
		if total.NeedsEmbedding, err = idx.storage.CountNeedsEmbedding(ctx); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// Update re-scans one collection under the index lock
func (idx *Indexer) Update(ctx context.Context, collection *storage.Collection) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.lock.Release()
	return idx.update(ctx, collection)
}

// update diffs the files matching the collection against its active
// documents. Running it twice without file changes reports only unchanged.
func (idx *Indexer) update(ctx context.Context, collection *storage.Collection) (*Statistics, error) {
	startTime := time.Now()
	stats := &Statistics{
		ErrorMessages: make([]string, 0),
	}

	files, unreadable, err := discoverFiles(idx.openFS(collection.Root), collection.Glob)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	for _, u := range unreadable {
		stats.Failed++
		stats.ErrorMessages = append(stats.ErrorMessages, u.Error())
		idx.logger.Warn("skipping unreadable path", zap.String("path", u.Path), zap.Error(u.Err))
	}

	seen := make(map[string]bool, len(files))
	for i := 0; i < len(files); i += idx.cfg.BatchSize {
		end := i + idx.cfg.BatchSize
		if end > len(files) {
			end = len(files)
		}
		batch := files[i:end]
		for _, rel := range batch {
			seen[rel] = true
		}
		if err := idx.indexBatch(ctx, collection, batch, stats); err != nil {
			return nil, err
		}
	}

	if err := idx.removeMissing(ctx, collection, seen, unreadable, stats); err != nil {
		return nil, err
	}

	if err := idx.storage.TouchCollection(ctx, collection.ID); err != nil {
		return nil, fmt.Errorf("failed to touch collection: %w", err)
	}

	stats.NeedsEmbedding, err = idx.storage.CountNeedsEmbedding(ctx)
	if err != nil {
		return nil, err
	}
	stats.Duration = time.Since(startTime)

	idx.logger.Info("collection updated",
		zap.String("collection", collection.Name),
		zap.Int("indexed", stats.Indexed),
		zap.Int("updated", stats.Updated),
		zap.Int("unchanged", stats.Unchanged),
		zap.Int("removed", stats.Removed),
		zap.Int("failed", stats.Failed),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

// indexBatch indexes a batch of files within a transaction. A failing file is
// recorded and skipped; the rest of the batch still commits.
func (idx *Indexer) indexBatch(ctx context.Context, collection *storage.Collection, files []string, stats *Statistics) error {
	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, err := idx.indexFile(ctx, tx, collection, rel)
		if err != nil {
			stats.Failed++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", rel, err))
			idx.logger.Warn("index file failed", zap.String("path", rel), zap.Error(err))
			continue
		}
		switch result {
		case outcomeIndexed:
			stats.Indexed++
		case outcomeUpdated:
			stats.Updated++
		case outcomeUnchanged:
			stats.Unchanged++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// indexFile classifies one file and writes the change
func (idx *Indexer) indexFile(ctx context.Context, store storage.DocumentStore, collection *storage.Collection, rel string) (outcome, error) {
	abs := filepath.Join(collection.Root, filepath.FromSlash(rel))
	content, err := os.ReadFile(abs)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return 0, err
	}

	body := string(content)
	doc := &storage.Document{
		CollectionID: collection.ID,
		Path:         rel,
		DisplayPath:  DisplayPath(collection.Name, rel),
		Title:        ExtractTitle(rel, body),
		Hash:         chunker.Fingerprint(body),
		Body:         body,
		ModifiedAt:   info.ModTime(),
	}

	existing, err := store.GetActiveDocument(ctx, collection.ID, rel)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		err = store.InsertDocument(ctx, doc)
		if errors.Is(err, storage.ErrAlreadyExists) {
			// Another indexer inserted the path between our read and write
			existing, err = store.GetActiveDocument(ctx, collection.ID, rel)
			if err != nil {
				return 0, err
			}
			return idx.refresh(ctx, store, existing, doc)
		}
		if err != nil {
			return 0, err
		}
		if err := store.SetDisplayPath(ctx, doc.ID, doc.DisplayPath); err != nil {
			return 0, err
		}
		return outcomeIndexed, nil
	case err != nil:
		return 0, err
	}
	return idx.refresh(ctx, store, existing, doc)
}

// refresh updates an existing document when its fingerprint changed
func (idx *Indexer) refresh(ctx context.Context, store storage.DocumentStore, existing, doc *storage.Document) (outcome, error) {
	if existing.Hash == doc.Hash {
		return outcomeUnchanged, nil
	}
	doc.ID = existing.ID
	if err := store.UpdateDocumentContent(ctx, doc); err != nil {
		return 0, err
	}
	return outcomeUpdated, nil
}

// removeMissing deactivates active documents whose file was not seen.
// Documents below an unreadable path are kept.
func (idx *Indexer) removeMissing(ctx context.Context, collection *storage.Collection, seen map[string]bool, unreadable []*fs.PathError, stats *Statistics) error {
	docs, err := idx.storage.ListActiveDocuments(ctx, collection.ID)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		if seen[doc.Path] || below(doc.Path, unreadable) {
			continue
		}
		if err := idx.storage.DeactivateDocument(ctx, doc.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to deactivate %s: %w", doc.DisplayPath, err)
		}
		stats.Removed++
	}
	return nil
}

func below(rel string, unreadable []*fs.PathError) bool {
	for _, u := range unreadable {
		if rel == u.Path || strings.HasPrefix(rel, u.Path+"/") {
			return true
		}
	}
	return false
}

// discoverFiles returns the slash-separated paths in fsys matching glob, in
// lexical order. Hidden directories and node_modules are not entered. A
// directory that cannot be read is skipped and returned in unreadable; only a
// failure at the root is an error.
func discoverFiles(fsys fs.FS, glob string) (files []string, unreadable []*fs.PathError, err error) {
	err = fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == "." {
				return err
			}
			unreadable = append(unreadable, &fs.PathError{Op: "read", Path: p, Err: unwrapPathError(err)})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != "." && skipDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(path.Base(p), ".") {
			return nil
		}
		ok, err := doublestar.Match(glob, p)
		if err != nil {
			return err
		}
		if ok {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return files, unreadable, nil
}

func unwrapPathError(err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	return err
}

func skipDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules"
}
