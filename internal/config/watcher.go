package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadSettle = 100 * time.Millisecond

// OnReload receives the config in effect before a reload and the one that
// replaced it.
type OnReload func(old, new *Config)

// Watcher reloads a config file whenever it changes on disk. A file that
// fails to load or validate is logged and the previous config stays active.
type Watcher struct {
	fsw      *fsnotify.Watcher
	path     string
	onReload OnReload
	logger   zerolog.Logger

	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// Watch starts watching path. onReload runs on the watcher goroutine, so
// reloads never overlap.
func Watch(path string, logger zerolog.Logger, onReload OnReload) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config watcher: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	// Editors replace files by rename, which drops a watch on the file itself.
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config watcher: watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		fsw:      fsw,
		path:     abs,
		onReload: onReload,
		logger:   logger.With().Str("component", "config_watcher").Logger(),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops the watcher and waits for an in-progress reload to finish.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stop)
		err = w.fsw.Close()
		<-w.stopped
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.stopped)

	// settle is non-nil while a burst of events is being coalesced.
	var settle <-chan time.Time
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) == w.path && ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				settle = time.After(reloadSettle)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("fsnotify error")
		case <-settle:
			settle = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	old := Get()
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error().Err(err).Str("path", w.path).Msg("reload rejected, keeping previous config")
		return
	}
	w.logger.Info().Str("path", w.path).Msg("config reloaded")

	if w.onReload == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error().Interface("panic", r).Msg("reload callback panicked")
		}
	}()
	w.onReload(old, cfg)
}
