package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/tartampluch/go-wakeup/internal/config"
)

// Watcher reports changes to a fixed set of files (local calendars, the
// settings file). Parent directories are watched so that editors replacing
// the file through a rename are still seen.
type Watcher struct {
	Paths []string

	// OnChange is called from the watcher goroutine for every relevant event.
	// Callers are expected to debounce.
	OnChange func(path string)
}

// Run blocks until ctx is cancelled or the underlying watcher breaks.
func (w *Watcher) Run(ctx context.Context) error {
	log := slog.With(config.LogKeyComponent, config.CompWatcher)

	targets := make(map[string]struct{}, len(w.Paths))
	dirs := make(map[string]struct{})
	for _, p := range w.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("%s: %w", config.ErrWatcher, err)
		}
		targets[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	if len(targets) == 0 {
		<-ctx.Done()
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrWatcher, err)
	}
	defer func() { _ = fw.Close() }()

	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("%s: %w", config.ErrWatcher, err)
		}
		log.Debug(config.MsgWatchAdded, config.LogKeyFile, dir)
	}

	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&relevant == 0 {
				continue
			}
			name, err := filepath.Abs(ev.Name)
			if err != nil {
				continue
			}
			if _, watched := targets[name]; !watched {
				continue
			}
			log.Debug(config.MsgWatchEvent, config.LogKeyFile, name, config.LogKeyReason, ev.Op.String())
			if w.OnChange != nil {
				w.OnChange(name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Warn(config.ErrWatcher, config.LogKeyError, err)
		}
	}
}
