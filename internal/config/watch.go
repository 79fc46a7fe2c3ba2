package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchTunables watches the tunables file and invokes onChange with each
// successfully loaded revision. Invalid edits are logged and skipped; the
// previous tunables stay in effect. Returns a stop function.
//
// The parent directory is watched rather than the file itself: editors that
// write-rename would otherwise drop the watch after the first save.
func WatchTunables(path string, logger *slog.Logger, onChange func(Tunables)) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	target := filepath.Clean(path)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				t, err := LoadTunables(path)
				if err != nil {
					logger.Warn("tunables reload failed, keeping previous values",
						"path", path,
						"error", err)
					continue
				}
				logger.Info("tunables reloaded", "path", path)
				onChange(t)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("tunables watcher error", "error", err)
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
