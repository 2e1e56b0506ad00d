package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/amaumene/gomovarr/internal/renamer"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Scanner runs the renamer in the background
type Scanner interface {
	ScanAsync(ctx context.Context, req renamer.Request) bool
}

// Watcher triggers a full scan once the from folder has been quiet for a while
type Watcher struct {
	root    string
	delay   time.Duration
	scanner Scanner
	watcher *fsnotify.Watcher
	logger  *logrus.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a watcher on root. Scans start delay after the last change.
func New(root string, delay time.Duration, scanner Scanner, logger *logrus.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	return &Watcher{
		root:    root,
		delay:   delay,
		scanner: scanner,
		watcher: fw,
		logger:  logger,
	}, nil
}

// Run watches until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}
	w.logger.WithField("folder", w.root).Info("Watching folder for new downloads")

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Watcher error")
		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return nil
		}
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("failed to watch %s: %w", root, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.WithError(err).WithField("folder", path).Debug("Failed to watch folder")
		}
		return nil
	})
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}
	if ignoredName(filepath.Base(event.Name)) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.WithError(err).WithField("folder", event.Name).Debug("Failed to watch new folder")
			}
		}
	}

	w.logger.WithField("file", event.Name).Debug("Change detected")
	w.schedule(ctx)
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, func() {
		if ctx.Err() != nil {
			return
		}
		if !w.scanner.ScanAsync(ctx, renamer.Request{}) {
			w.logger.Debug("Renamer busy, change will be picked up by the next scan")
		}
	})
}

// ignoredName filters our own markers and partial downloads
func ignoredName(name string) bool {
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, ".") {
		return true
	}
	for _, suffix := range []string{".ignore", ".part", ".tmp", ".!qb"} {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
