package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces the burst of events an editor save produces.
const watchDebounce = 250 * time.Millisecond

// Watch reloads the config file at path whenever it is written or
// replaced, and hands each successfully loaded config to onChange. A file
// that fails to load or validate is logged and the previous config stays in
// effect. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(*Config)) error {
	logger = logger.With(slog.String("component", "config-watcher"))

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer w.Close() //nolint:errcheck

	// Watch the directory: editors and config-map mounts replace the file
	// rather than writing it in place.
	target := filepath.Clean(path)
	dir := filepath.Dir(target)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	logger.Info("watching config file", "path", target)

	var reload <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				reload = time.After(watchDebounce)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)

		case <-reload:
			reload = nil
			cfg, err := Load(target)
			if err != nil {
				logger.Warn("ignoring invalid config change", "error", err)
				continue
			}
			logger.Info("config reloaded", "logging", cfg.Logging.String())
			onChange(cfg)
		}
	}
}
