package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchConfig configures Watch.
type WatchConfig struct {
	// Path is a catalog file or a directory of fragments.
	Path string

	// Pattern selects fragments when Path is a directory.
	Pattern string

	// DebounceDelay is how long to wait for more changes before reloading.
	DebounceDelay time.Duration

	Logger *slog.Logger
}

// WatchEvent carries the result of one reload.
type WatchEvent struct {
	Questions []Question
	Issues    []Issue
	Err       error
}

// Watch loads the catalog at cfg.Path, reports it to fn, and then reloads
// and re-lints it whenever the file (or a fragment in the directory)
// changes. It blocks until ctx is cancelled.
func Watch(ctx context.Context, cfg WatchConfig, fn func(WatchEvent)) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := cfg.DebounceDelay
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	path := filepath.Clean(cfg.Path)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	var provider Provider
	if info.IsDir() {
		provider = &DirProvider{Root: path, Pattern: cfg.Pattern, Logger: logger}
	} else {
		provider = &FileProvider{Path: path, Logger: logger}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	// Editors often replace files by rename, so watch the parent directory.
	if info.IsDir() {
		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && p != path {
					return filepath.SkipDir
				}
				return fsw.Add(p)
			}
			return nil
		})
	} else {
		err = fsw.Add(filepath.Dir(path))
	}
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	reload := func() {
		qs, err := provider.Load(ctx)
		ev := WatchEvent{Questions: qs, Err: err}
		if err == nil {
			ev.Issues = Lint(qs)
		}
		fn(ev)
	}

	logger.Info("Watching catalog", "path", path, "debounce", debounce)
	reload()

	relevant := func(name string) bool {
		if !info.IsDir() {
			return filepath.Clean(name) == path
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".yaml", ".yml", ".json":
			return true
		}
		return false
	}

	ticker := time.NewTicker(debounce)
	defer ticker.Stop()
	dirty := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if info.IsDir() && event.Has(fsnotify.Create) {
				if st, err := os.Stat(event.Name); err == nil && st.IsDir() {
					if err := fsw.Add(event.Name); err != nil {
						logger.Warn("Failed to watch new directory", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if relevant(event.Name) {
				logger.Debug("Catalog change detected", "path", event.Name, "op", event.Op.String())
				dirty = true
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Error("Watcher error", "error", err)

		case <-ticker.C:
			if dirty {
				dirty = false
				reload()
			}
		}
	}
}
