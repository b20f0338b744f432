package config

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 100 * time.Millisecond

// ConfigWatcher reloads a config file when it changes on disk.
//
// The parent directory is watched so rename-over saves are seen. A reload
// that yields the same settings as the previous one is not published, so
// touching the file does not reconfigure the pipeline.
type ConfigWatcher struct {
	path     string
	name     string
	debounce time.Duration
	logger   logger.ILogger

	onChange chan *Config
	onError  chan error

	mu         sync.Mutex
	applied    *Config
	lastConfig *Config
}

// NewConfigWatcher creates a watcher for path.
func NewConfigWatcher(path string, log logger.ILogger) *ConfigWatcher {
	return &ConfigWatcher{
		path:     path,
		name:     filepath.Clean(path),
		debounce: DefaultDebounce,
		logger:   log.SubLogger("ConfigWatcher"),
		onChange: make(chan *Config, 1),
		onError:  make(chan error, 1),
	}
}

// SetDebounce overrides DefaultDebounce. Call before Start.
func (w *ConfigWatcher) SetDebounce(d time.Duration) {
	w.debounce = d
}

// Changes delivers each new, validated config. Only the newest pending one is kept.
func (w *ConfigWatcher) Changes() <-chan *Config {
	return w.onChange
}

// Errors delivers load and validation failures. Errors are dropped when nobody reads.
func (w *ConfigWatcher) Errors() <-chan error {
	return w.onError
}

// Start records the current file contents as the baseline and watches for
// changes until ctx is done.
func (w *ConfigWatcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	dir := filepath.Dir(w.name)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	if cfg, err := Load(w.path); err == nil {
		w.mu.Lock()
		w.applied = cfg
		w.mu.Unlock()
	}

	w.logger.Debugf("watching config file: path=%s, debounce=%s", w.path, w.debounce)
	go w.watchLoop(ctx, fsw)
	return nil
}

func (w *ConfigWatcher) watchLoop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer fsw.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("config watcher stopped")
			return

		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			w.logger.Debugf("config file change detected: op=%s", event.Op)
			timer.Reset(w.debounce)

		case <-timer.C:
			w.reload()

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("fsnotify error: %v", err)
			w.sendError(err)
		}
	}
}

// relevant reports whether event may have changed the watched file's contents.
func (w *ConfigWatcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != w.name {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *ConfigWatcher) reload() {
	cfg, err := Load(w.path)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		w.logger.Errorf("failed to reload config: path=%s, err=%v", w.path, err)
		w.sendError(err)
		return
	}

	w.mu.Lock()
	unchanged := w.applied != nil && reflect.DeepEqual(w.applied, cfg)
	if !unchanged {
		w.applied = cfg
		w.lastConfig = cfg
	}
	w.mu.Unlock()

	if unchanged {
		w.logger.Debugf("config file saved without changes: path=%s", w.path)
		return
	}

	w.logger.Infof("config reloaded: path=%s", w.path)
	w.publish(cfg)
}

// publish replaces any config the reader has not picked up yet.
func (w *ConfigWatcher) publish(cfg *Config) {
	for {
		select {
		case w.onChange <- cfg:
			return
		default:
		}
		select {
		case stale := <-w.onChange:
			w.logger.Debugf("superseding unread config: loglevel=%s", stale.LogLevel)
		default:
		}
	}
}

func (w *ConfigWatcher) sendError(err error) {
	select {
	case w.onError <- err:
	default:
	}
}

// LastConfig returns the last config published on Changes, or nil.
func (w *ConfigWatcher) LastConfig() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastConfig
}
