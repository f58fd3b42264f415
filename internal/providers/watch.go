package providers

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the registry whenever the providers file changes. It
// blocks until the context is cancelled. A file that fails to parse is
// logged and the last good providers stay in effect.
func (r *Registry) Watch(ctx context.Context, path string, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors and config management replace the
	// file by rename, which drops a watch on the file itself.
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving providers file: %w", err)
	}

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching providers directory: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("fsnotify events channel closed")
			}

			if filepath.Clean(event.Name) != abs {
				continue
			}

			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}

			if err := r.Reload(abs); err != nil {
				logger.Warn("providers reload failed, keeping previous set",
					slog.String("path", abs),
					slog.String("error", err.Error()),
				)

				continue
			}

			logger.Info("providers reloaded",
				slog.String("path", abs),
				slog.Any("providers", r.Names()),
			)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("fsnotify errors channel closed")
			}

			logger.Warn("providers watcher error", slog.String("error", err.Error()))
		}
	}
}
