package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// settle absorbs the burst of events a single save produces.
const settle = 100 * time.Millisecond

// Watch reloads configPath whenever it changes and passes the result to fn. It watches the
// containing directory so editors that save by rename are seen too. Watch blocks until ctx is
// done.
func Watch(ctx context.Context, configPath string, fn func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", configPath, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	log.Debugf("Watching config file: %s", abs)

	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(settle)
			} else {
				timer.Reset(settle)
			}
			reload = timer.C

		case <-reload:
			reload = nil
			cfg, err := LoadConfig(abs)
			if err != nil {
				log.Warnf("Failed to reload config from %s: %v", abs, err)
				continue
			}
			log.Debugf("Reloaded config from %s", abs)
			fn(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnf("Config watcher error: %v", err)
		}
	}
}
