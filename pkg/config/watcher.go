package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher re-validates a deployment file whenever it or its values files
// change on disk. Used by `helmdeck validate --watch`.
type Watcher struct {
	loader *Loader
	logger zerolog.Logger

	// debounce collapses editor save bursts into one reload.
	debounce time.Duration
}

// NewWatcher creates a watcher over the given loader.
func NewWatcher(loader *Loader, logger zerolog.Logger) *Watcher {
	return &Watcher{
		loader:   loader,
		logger:   logger,
		debounce: 500 * time.Millisecond,
	}
}

// Watch blocks until ctx is done, invoking onChange after every change
// burst to path or to any sibling .yaml/.yml/.star file. onChange errors
// are logged and watching continues.
func (w *Watcher) Watch(ctx context.Context, path string, onChange func(context.Context) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watching the directory rather than the file survives the
	// rename-and-replace save strategy editors use.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	w.logger.Info().Str("dir", dir).Msg("watching for changes")

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !watchedFile(event.Name) {
				continue
			}
			w.logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("file changed")

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				if err := onChange(ctx); err != nil {
					w.logger.Error().Err(err).Msg("reload failed")
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watch error")
		}
	}
}

func watchedFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".star":
		return true
	}
	return false
}
