package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const debounceInterval = 250 * time.Millisecond

// Watch re-loads the config file whenever it changes and delivers the
// result to apply. Malformed edits are logged and skipped; the previous
// configuration stays in effect. Watch blocks until ctx is canceled.
func Watch(ctx context.Context, path string, logger *zap.Logger, apply func(Config)) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("config_watcher")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory: editors replace the file on save, which drops
	// a watch installed on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	target := filepath.Clean(path)
	var timer *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceInterval, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			cfg, err := Load(path)
			if err != nil {
				logger.Warn("config reload skipped", zap.Error(err))
				continue
			}
			logger.Info("config reloaded", zap.Int("upstreams", len(cfg.Upstreams)))
			apply(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch error", zap.Error(err))
		}
	}
}
