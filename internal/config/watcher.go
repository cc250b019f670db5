package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/teranos/tabsync/errors"
)

// ReloadCallback is invoked with the freshly reloaded configuration
// after a debounced file change. A returned error is logged, not fatal.
type ReloadCallback func(*Config) error

// Watcher watches a config file for changes and debounces reloads,
// adapted from the teacher's am.ConfigWatcher: same debounce-timer
// shape, generalized to this package's single Config type. Every write
// or create event on the file schedules a reload.
type Watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	log      *zap.SugaredLogger
	debounce time.Duration

	mu        sync.Mutex
	timer     *time.Timer
	callbacks []ReloadCallback
}

// NewWatcher starts watching path (the config file actually used to
// produce the current Config). log may be nil.
func NewWatcher(path string, log *zap.SugaredLogger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create config watcher")
	}
	if err := fsw.Add(path); err != nil {
		fsw.Close()
		return nil, errors.Wrapf(err, "failed to watch config file %s", path)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Watcher{
		path:     path,
		fsw:      fsw,
		log:      log,
		debounce: 500 * time.Millisecond,
	}, nil
}

// OnReload registers a callback invoked after every debounced reload.
func (w *Watcher) OnReload(cb ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start begins watching for file system events in the background.
func (w *Watcher) Start() {
	go w.loop()
}

// Stop closes the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warnw("config watcher error", "error", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := LoadFromFile(w.path)
	if err != nil {
		w.log.Errorw("config reload failed", "error", err)
		return
	}
	w.log.Infow("config reloaded", "path", w.path)

	w.mu.Lock()
	callbacks := make([]ReloadCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	for _, cb := range callbacks {
		if err := cb(cfg); err != nil {
			w.log.Warnw("config reload callback failed", "error", err)
		}
	}
}
