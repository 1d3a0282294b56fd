package rules

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/exp/slog"
)

const DefaultDebounce = 500 * time.Millisecond

// Watch reloads the rules file whenever it changes, passing each successfully parsed
// result to apply. An invalid file is logged and the previous rules stay in effect.
// Watch blocks until ctx is canceled.
func Watch(ctx context.Context, logger *slog.Logger, path string, debounce time.Duration, apply func(*Rules)) error {
	if path == "" {
		logger.Info("No rules file configured; rules watcher disabled")
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create rules watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the parent directory, since editors often replace the file rather than
	// writing it in place
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch rules file: %w", err)
	}
	logger.Info("Watching rules file for changes", "path", path)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			rs, err := Load(path)
			if err != nil {
				logger.Error("Failed to reload rules; keeping previous rules", "path", path, "error", err)
				continue
			}
			logger.Info("Reloaded rules", "path", path, "numHolidays", len(rs.Holidays), "numExpectedSlots", len(rs.ExpectedSlots))
			apply(rs)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("Rules watcher error", "error", err)
		}
	}
}
