package config

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const defaultDebounce = 250 * time.Millisecond

// UpdateHandler receives every configuration that loaded and validated after
// a change.
type UpdateHandler func(*Config)

// Watcher reloads the configuration when the config file, an include, the
// bundle or a pattern file changes. Bursts of events are coalesced.
type Watcher struct {
	path     string
	debounce time.Duration
	handler  UpdateHandler
	log      logrus.FieldLogger

	watcher *fsnotify.Watcher

	mu    sync.Mutex
	files map[string]struct{}
	timer *time.Timer
}

func NewWatcher(path string, cfg *Config, handler UpdateHandler, log logrus.FieldLogger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	debounce := cfg.Watch.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	w := &Watcher{
		path:     path,
		debounce: debounce,
		handler:  handler,
		log:      log,
		watcher:  fsWatcher,
	}
	if err := w.track(cfg); err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}
	return w, nil
}

// track watches the directory of every file cfg depends on. Editors replace
// files by rename, so directories are watched rather than files.
func (w *Watcher) track(cfg *Config) error {
	files := map[string]struct{}{}
	dirs := map[string]struct{}{}
	for _, f := range cfg.WatchedFiles(w.path) {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
	}

	w.mu.Lock()
	w.files = files
	w.mu.Unlock()
	return nil
}

func (w *Watcher) Start(ctx context.Context) {
	w.log.WithField("path", w.path).Info("watching configuration")
	go w.loop(ctx)
}

func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if w.relevant(event.Name) {
				w.schedule()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Error("configuration watcher error")
		}
	}
}

func (w *Watcher) relevant(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.files[abs]
	return ok
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.log.WithError(err).Error("reload failed, keeping previous configuration")
		return
	}
	if err := cfg.Validate(); err != nil {
		fields := logrus.Fields{"error": err}
		var verr *ValidationError
		if errors.As(err, &verr) {
			fields["problems"] = verr.Problems
		}
		w.log.WithFields(fields).Error("reloaded configuration is invalid, keeping previous configuration")
		return
	}
	if err := w.track(cfg); err != nil {
		w.log.WithError(err).Warn("could not watch every configuration file")
	}

	w.log.WithField("path", w.path).Info("configuration reloaded")
	if w.handler != nil {
		w.handler(cfg)
	}
}
