package watcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a directory and fires when entries land in it. It
// exists so spool drops are picked up right away instead of waiting
// out the next poll.
type Watcher struct {
	dir      string
	onChange func()
	debounce time.Duration
	logger   *slog.Logger
}

// New creates a new directory watcher
func New(dir string, onChange func(), logger *slog.Logger) *Watcher {
	return &Watcher{
		dir:      dir,
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		logger:   logger,
	}
}

// WithDebounce sets the debounce duration
func (w *Watcher) WithDebounce(d time.Duration) *Watcher {
	w.debounce = d
	return w
}

// Watch blocks until the context ends, invoking the change callback
// after bursts of directory activity settle
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}

	w.logger.Info("watching directory", "dir", w.dir)

	var debounceTimer *time.Timer

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			// Dotfiles cover editor temp files and partial uploads.
			name := filepath.Base(event.Name)
			if strings.HasPrefix(name, ".") {
				continue
			}

			// Renames matter here: atomic drops land via rename.
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(w.debounce, func() {
					w.logger.Debug("directory changed", "dir", w.dir, "trigger", name)
					w.onChange()
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", "error", err)

		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil
		}
	}
}
