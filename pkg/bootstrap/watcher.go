package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch re-applies the operations file whenever it changes. It watches the
// containing directory rather than the file itself so editors that replace
// the file on save keep triggering events. Blocks until ctx is cancelled.
func (b *Bootstrapper) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	// Editors emit bursts of events for a single save; a short debounce
	// collapses them into one re-apply.
	var pending *time.Timer
	apply := func() {
		applyCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := b.ApplyOperations(applyCtx, path); err != nil {
			b.logger.WithError(err).WithField("file", path).Error("failed to re-apply operations file")
			return
		}
		b.logger.WithField("file", path).Info("operations file re-applied")
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || abs != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(250*time.Millisecond, apply)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			b.logger.WithError(err).Warn("file watcher error")
		}
	}
}
