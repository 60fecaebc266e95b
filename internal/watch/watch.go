// Package watch re-runs a build when source files change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Filter reports whether a changed path should trigger a rebuild.
type Filter func(path string) bool

// Handler receives one debounced batch of changed paths, sorted and
// deduplicated. It runs on the watcher goroutine; changes arriving meanwhile
// are batched for the next call.
type Handler func(ctx context.Context, changed []string)

type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	skipDirs map[string]bool
	filters  []Filter
	logger   *slog.Logger
}

// New creates a watcher. Directories whose absolute path is in skipDirs (and
// any directory named .git or node_modules) are never watched.
func New(debounce time.Duration, skipDirs []string, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		return nil, fmt.Errorf("debounce must be > 0 (got %s)", debounce)
	}
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	w := &Watcher{
		fs:       fw,
		debounce: debounce,
		skipDirs: make(map[string]bool, len(skipDirs)),
		logger:   logger,
	}
	for _, d := range skipDirs {
		if abs, err := filepath.Abs(d); err == nil {
			w.skipDirs[abs] = true
		}
	}
	return w, nil
}

// AddFilter adds a filter; a path must pass every filter.
func (w *Watcher) AddFilter(f Filter) {
	w.filters = append(w.filters, f)
}

func (w *Watcher) skipped(dir string) bool {
	switch filepath.Base(dir) {
	case ".git", "node_modules":
		return true
	}
	abs, err := filepath.Abs(dir)
	return err == nil && w.skipDirs[abs]
}

// AddRecursive watches root and every directory below it.
func (w *Watcher) AddRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.skipped(path) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// AddFile watches a single file by watching its directory.
func (w *Watcher) AddFile(path string) error {
	dir := filepath.Dir(path)
	if err := w.fs.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	return nil
}

func (w *Watcher) accept(path string) bool {
	for _, f := range w.filters {
		if !f(path) {
			return false
		}
	}
	return true
}

// Run delivers debounced changes to handle until ctx is done. It returns nil
// on cancellation.
func (w *Watcher) Run(ctx context.Context, handle Handler) error {
	pending := make(map[string]bool)
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.fs.Events:
			if !ok {
				return errors.New("file watcher closed")
			}
			if ev.Has(fsnotify.Create) {
				// New directories are watched as they appear.
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() && !w.skipped(ev.Name) {
					if err := w.AddRecursive(ev.Name); err != nil {
						w.logger.Warn("cannot watch new directory", slog.String("path", ev.Name), slog.Any("error", err))
					}
					continue
				}
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !w.accept(ev.Name) {
				continue
			}
			pending[ev.Name] = true
			timer.Reset(w.debounce)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return errors.New("file watcher closed")
			}
			w.logger.Warn("file watcher error", slog.Any("error", err))

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			changed := make([]string, 0, len(pending))
			for p := range pending {
				changed = append(changed, p)
			}
			sort.Strings(changed)
			clear(pending)
			handle(ctx, changed)
		}
	}
}

func (w *Watcher) Close() error {
	return w.fs.Close()
}

// ExtensionFilter accepts paths with one of exts (".ts", ".scss", ...).
func ExtensionFilter(exts ...string) Filter {
	return func(path string) bool {
		ext := strings.ToLower(filepath.Ext(path))
		for _, e := range exts {
			if ext == e {
				return true
			}
		}
		return false
	}
}

// NoEditorFilter rejects editor swap and backup files.
func NoEditorFilter(path string) bool {
	base := filepath.Base(path)
	return !strings.HasPrefix(base, ".#") &&
		!strings.HasSuffix(base, "~") &&
		!strings.HasSuffix(base, ".swp")
}
