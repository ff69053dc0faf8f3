package fs

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/panyam/questauth"
)

// DefaultDebounce is how long the watcher waits after the last change to a
// file before reporting it. An atomic write produces several events.
const DefaultDebounce = 100 * time.Millisecond

// Watch calls onChange whenever the file for key is written, replaced or
// removed, by this process or another one. Watching stops when ctx ends.
func (s *FileStore) Watch(ctx context.Context, key string, logger *zap.Logger, onChange func()) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}

	name := fileName(key)
	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
					!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				logger.Debug("stored value changed", zap.String("key", key), zap.String("op", event.Op.String()))
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(DefaultDebounce, onChange)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("file watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

// WatchCache evicts cache's in-memory credential whenever its file changes,
// so a login or sign-out in another process is picked up on the next read.
func (s *FileStore) WatchCache(ctx context.Context, cache *questauth.CredentialCache, logger *zap.Logger) error {
	return s.Watch(ctx, cache.Key(), logger, cache.Evict)
}
