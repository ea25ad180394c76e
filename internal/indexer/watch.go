package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultDebounce is the quiet period after the last change before a refresh
const DefaultDebounce = 2 * time.Second

// RefreshFunc receives the outcome of each refresh the watcher runs
type RefreshFunc func(stats *Statistics, embedStats *EmbedStatistics, err error)

// Watcher refreshes the index when files below any collection root change
type Watcher struct {
	indexer   *Indexer
	debounce  time.Duration
	onRefresh RefreshFunc
	logger    *zap.Logger
}

// NewWatcher creates a Watcher. A non-positive debounce uses DefaultDebounce.
func NewWatcher(idx *Indexer, debounce time.Duration, onRefresh RefreshFunc) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		indexer:   idx,
		debounce:  debounce,
		onRefresh: onRefresh,
		logger:    idx.logger.With(zap.String("component", "watcher")),
	}
}

// Run watches until ctx is done. Bursts of changes collapse into one
// Refresh once no event arrived for the debounce period.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	collections, err := w.indexer.storage.ListCollections(ctx)
	if err != nil {
		return err
	}
	if len(collections) == 0 {
		return errors.New("no collections to watch")
	}
	for _, c := range collections {
		if err := watchTree(fw, c.Root); err != nil {
			return fmt.Errorf("watch %s: %w", c.Root, err)
		}
		w.logger.Info("watching collection", zap.String("collection", c.Name), zap.String("root", c.Root))
	}

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := watchTree(fw, ev.Name); err != nil {
						w.logger.Warn("watch new directory failed", zap.String("path", ev.Name), zap.Error(err))
					}
				}
			}
			w.logger.Debug("change detected", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", zap.Error(err))

		case <-timer.C:
			stats, embedStats, err := w.indexer.Refresh(ctx)
			if errors.Is(err, ErrIndexInProgress) {
				// Another run holds the lock; try again after it
				timer.Reset(w.debounce)
				continue
			}
			if err != nil {
				w.logger.Error("refresh failed", zap.Error(err))
			}
			if w.onRefresh != nil {
				w.onRefresh(stats, embedStats, err)
			}
		}
	}
}

// watchTree adds root and every directory below it that discovery enters
func watchTree(fw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		return fw.Add(p)
	})
}

// relevant reports whether an event can change the index. Permission changes
// and hidden paths never do.
func relevant(ev fsnotify.Event) bool {
	if strings.HasPrefix(filepath.Base(ev.Name), ".") {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) ||
		ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}
