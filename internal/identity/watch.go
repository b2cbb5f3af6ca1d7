package identity

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls onChange with the reloaded identity whenever another process
// rewrites the credential file. Writes made through this Store are ignored.
// Watch blocks until ctx is canceled.
func (s *Store) Watch(ctx context.Context, onChange func(*Identity)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("identity: creating watcher: %w", err)
	}
	defer watcher.Close()

	// Saves replace the file by rename, so the directory is watched.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("identity: watching %s: %w", filepath.Dir(s.path), err)
	}

	target := filepath.Clean(s.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Create|fsnotify.Write) {
				continue
			}

			if !s.changedOnDisk() {
				continue
			}

			id, err := s.Load()
			if err != nil {
				s.logger.Warn("reloading credentials", slog.String("error", err.Error()))
				continue
			}

			s.logger.Debug("credentials changed on disk, reloaded")
			onChange(id)

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			s.logger.Warn("credential watcher error", slog.String("error", werr.Error()))
		}
	}
}
