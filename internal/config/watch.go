package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 500 * time.Millisecond

// Watcher reloads a config file when it changes on disk.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func(*Config)
	log      zerolog.Logger
	delay    time.Duration
}

// NewWatcher watches path. onChange receives every config that loads and
// validates cleanly; failed reloads are logged and the previous config
// stays in effect.
func NewWatcher(path string, onChange func(*Config), log zerolog.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Editors replace files by rename, so watch the directory.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", path, err)
	}
	return &Watcher{
		watcher:  watcher,
		path:     filepath.Clean(path),
		onChange: onChange,
		log:      log,
		delay:    reloadDebounce,
	}, nil
}

// Run handles file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(w.delay, w.reload)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error().Err(err).Msg("file watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path, w.log)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		w.log.Error().Err(err).Str("path", w.path).Msg("hot-reload failed")
		return
	}
	w.log.Info().Str("path", w.path).Msg("hot-reload: config reloaded")
	w.onChange(cfg)
}
