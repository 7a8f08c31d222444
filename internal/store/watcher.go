package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fairyhunter13/festival-restock-service/internal/obs"
)

// Watcher invalidates a FileStore's snapshot whenever its backing file
// changes on disk, including changes made by other processes.
type Watcher struct {
	fs        *FileStore
	w         *fsnotify.Watcher
	dir       string
	target    string
	closeOnce sync.Once
	closeErr  error
}

// NewWatcher watches the directory holding the store file. The directory is
// created if it does not exist yet.
func NewWatcher(s *FileStore) (*Watcher, error) {
	dir := filepath.Dir(s.Path())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	return &Watcher{fs: s, w: fw, dir: filepath.Clean(dir), target: s.Path()}, nil
}

// Run enables the store cache and processes file events until ctx is done.
// The watcher is closed when Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	w.fs.EnableCache(true)
	defer w.fs.EnableCache(false)
	obs.Logger.Info("store_watch_started", zap.String("dir", w.dir))
	for {
		select {
		case <-ctx.Done():
			return w.Close()
		case ev, ok := <-w.w.Events:
			if !ok {
				return nil
			}
			name := filepath.Clean(ev.Name)
			if name == w.dir && (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) {
				// The kernel drops the watch with the directory; stop caching
				// rather than trust events that will no longer arrive.
				w.fs.EnableCache(false)
				obs.Logger.Warn("store_watch_lost", zap.String("dir", w.dir), zap.String("op", ev.Op.String()))
				continue
			}
			if name != w.target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				w.fs.Invalidate()
				obs.Logger.Debug("store_changed", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
			}
		case err, ok := <-w.w.Errors:
			if !ok {
				return nil
			}
			// Events may have been dropped, so the snapshot can't be trusted.
			w.fs.Invalidate()
			obs.Logger.Warn("store_watch_error", zap.Error(err))
		}
	}
}

// Close stops the underlying fsnotify watcher. It is safe to call repeatedly.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		w.closeErr = w.w.Close()
	})
	return w.closeErr
}
