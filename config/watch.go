package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads cfile whenever it is written or replaced and passes each
// valid configuration to onChange. Invalid files are logged and skipped.
// The directory is watched instead of the file so that editors replacing
// the file by rename are noticed as well. Watch returns when ctx is done.
func Watch(ctx context.Context, cfile string, onChange func(*Config)) error {
	abs, err := filepath.Abs(cfile)
	if err != nil {
		return fmt.Errorf("can't resolve config file %s: %w", cfile, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	slog.Debug("Watching config file", "file", abs)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			// writers truncate before writing, an empty file is not final yet
			if fi, err := os.Stat(abs); err != nil || fi.Size() == 0 {
				continue
			}
			conf, err := ReadConfig(abs)
			if err != nil {
				slog.Warn("Ignoring config file change", "file", abs, "error", err)
				continue
			}
			slog.Info("Config file changed", "file", abs)
			onChange(conf)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("Config watcher error", "error", err)
		}
	}
}
