package preview

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchFile calls onChange with the contents of path once at start and again
// after every write, debounced by delay. The parent directory is watched so
// editors that replace the file on save are followed. WatchFile blocks until
// ctx is cancelled.
func WatchFile(ctx context.Context, path string, delay time.Duration, onChange func(text string), log *slog.Logger) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	reload := func() {
		data, err := os.ReadFile(abs)
		if err != nil {
			log.Warn("read watched file", "path", abs, "error", err)
			return
		}
		onChange(string(data))
	}
	reload()

	d := NewDebouncer(delay, reload)
	defer d.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				log.Debug("watched file changed", "path", abs, "op", ev.Op.String())
				d.Trigger()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn("file watcher error", "error", err)
		}
	}
}
