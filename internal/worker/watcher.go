package worker

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hyperengineering/jukebox/internal/scan"
	"github.com/hyperengineering/jukebox/internal/types"
)

// Refresher rebuilds the catalog from disk.
type Refresher interface {
	Refresh(ctx context.Context, progress scan.Progress) (*types.RefreshResult, error)
}

// LibraryWatcher refreshes the catalog after the music directory has been
// quiet for the debounce period.
type LibraryWatcher struct {
	refresher Refresher
	root      string
	debounce  time.Duration
	matches   func(path string) bool
}

// NewLibraryWatcher creates a watcher over root. matches selects the files
// whose changes trigger a refresh; nil accepts every file.
func NewLibraryWatcher(refresher Refresher, root string, debounce time.Duration, matches func(string) bool) *LibraryWatcher {
	if matches == nil {
		matches = func(string) bool { return true }
	}
	return &LibraryWatcher{
		refresher: refresher,
		root:      root,
		debounce:  debounce,
		matches:   matches,
	}
}

// Run watches until ctx is cancelled. It returns an error only when the
// watch cannot be established.
func (w *LibraryWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := w.addRecursive(watcher, w.root); err != nil {
		return err
	}

	slog.Info("worker started",
		"component", "worker",
		"worker", "library-watcher",
		"root", w.root,
		"debounce", w.debounce.String(),
	)

	timer := time.NewTimer(w.debounce)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("worker stopped",
				"component", "worker",
				"worker", "library-watcher",
				"reason", "context_cancelled",
			)
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if w.relevant(watcher, event) {
				timer.Reset(w.debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watch error",
				"component", "worker",
				"worker", "library-watcher",
				"error", err,
			)

		case <-timer.C:
			w.refresh(ctx)
		}
	}
}

// relevant reports whether event should schedule a refresh. Newly created
// directories are added to the watch.
func (w *LibraryWatcher) relevant(watcher *fsnotify.Watcher, event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) {
		return false
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(watcher, event.Name); err != nil {
				slog.Warn("watch new directory failed",
					"component", "worker",
					"worker", "library-watcher",
					"path", event.Name,
					"error", err,
				)
			}
			return true
		}
	}
	// a removed or renamed path can no longer be inspected
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		return true
	}
	return w.matches(event.Name)
}

func (w *LibraryWatcher) refresh(ctx context.Context) {
	slog.Info("library changed",
		"component", "worker",
		"action", "refresh_triggered",
	)
	if _, err := w.refresher.Refresh(ctx, nil); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Warn("refresh failed",
			"component", "worker",
			"action", "refresh_failed",
			"error", err,
		)
	}
}

func (w *LibraryWatcher) addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("watch %s: %w", root, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}
