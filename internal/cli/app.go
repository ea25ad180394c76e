package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/dshills/docsearch/internal/cache"
	"github.com/dshills/docsearch/internal/chunker"
	"github.com/dshills/docsearch/internal/config"
	"github.com/dshills/docsearch/internal/indexer"
	"github.com/dshills/docsearch/internal/llm"
	"github.com/dshills/docsearch/internal/logging"
	"github.com/dshills/docsearch/internal/searcher"
	"github.com/dshills/docsearch/internal/storage"
)

// options are the persistent flags shared by every command
type options struct {
	configPath string
	dbPath     string
	logLevel   string
}

// app holds the components a command works with. It is built on first use
// so that version and help never touch the database.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *storage.SQLiteStorage
	cache    cache.Store
	client   *llm.Client
	chunker  *chunker.Chunker
	indexer  *indexer.Indexer
	searcher *searcher.Searcher

	closers []func() error
}

func openApp(opts *options) (*app, error) {
	path := opts.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.dbPath != "" {
		cfg.DBPath = opts.dbPath
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	if err := a.openStorage(); err != nil {
		a.close()
		return nil, err
	}
	if err := a.openCache(); err != nil {
		a.close()
		return nil, err
	}

	a.chunker, err = chunker.New(cfg.Chunk.Window, cfg.Chunk.Overlap)
	if err != nil {
		a.close()
		return nil, err
	}
	a.client = llm.New(llm.Config{BaseURL: cfg.Ollama.URL, Timeout: cfg.Ollama.Timeout.Duration}, a.cache, logger)
	a.indexer = indexer.New(a.store, a.chunker, a.client, indexer.Config{EmbedModel: cfg.Models.Embed}, logger)
	a.searcher = searcher.NewSearcher(a.store, a.client, a.chunker, a.cache, searcher.Config{
		EmbedModel:       cfg.Models.Embed,
		RerankModel:      cfg.Models.Rerank,
		LexicalK:         cfg.Search.LexicalK,
		RRFK:             cfg.Search.RRFK,
		NegativeFactor:   cfg.Search.RerankNegativeFactor,
		RerankCandidates: cfg.Search.RerankCandidates,
		DefaultLimit:     cfg.Search.DefaultLimit,
	}, logger)
	return a, nil
}

func (a *app) openStorage() error {
	if a.cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(a.cfg.DBPath), 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	store, err := storage.NewSQLiteStorage(a.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, store.Close)
	a.logger.Debug("storage opened",
		zap.String("path", a.cfg.DBPath),
		zap.String("build_mode", storage.BuildMode),
		zap.String("driver", storage.DriverName))
	return nil
}

// openCache builds the model response cache for the configured backend
func (a *app) openCache() error {
	switch a.cfg.Cache.Backend {
	case config.CacheMemory:
		a.cache = cache.NewMemory(a.cfg.Cache.MemorySize)
	case config.CacheBadger:
		b, err := cache.OpenBadger(a.cfg.Cache.Dir, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, b.Close)
		a.cache = cache.NewTiered(cache.NewMemory(a.cfg.Cache.MemorySize), b)
	default:
		a.cache = cache.NewTiered(cache.NewMemory(a.cfg.Cache.MemorySize), a.store.Cache())
	}
	return nil
}

// close releases resources in reverse order of acquisition
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && !errors.Is(err, os.ErrClosed) {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
