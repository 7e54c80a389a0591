package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher monitors a config file for changes and calls a callback when the
// file is modified. It polls the file's mtime and size and only re-parses on
// a change; content is compared by SHA-256 so a touch alone is ignored.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	env      LookupFunc
	logger   *slog.Logger

	mu      sync.Mutex
	current *Config

	lastMtime time.Time
	lastSize  int64
	lastHash  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithEnv overlays env on every reload. The default is no overlay.
func WithEnv(env LookupFunc) WatcherOption {
	return func(w *Watcher) { w.env = env }
}

// WithWatcherLogger sets the logger. Default: slog.Default().
func WithWatcherLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// NewWatcher creates a config file watcher and loads the initial config
// immediately. Polling starts with [Watcher.Run].
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}

	cfg, hash, info, err := w.loadAndHash()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.lastHash = hash
	w.lastMtime = info.ModTime()
	w.lastSize = info.Size()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Run polls the file until ctx is cancelled. It always returns nil so it can
// run in an errgroup next to the server without cancelling it.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.check()
		}
	}
}

// check reads the config file and, if it has changed and is valid, calls
// onChange and updates the current config. An invalid file keeps the old one.
func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.lastMtime) && info.Size() == w.lastSize
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, hash, info, err := w.loadAndHash()
	if err != nil {
		w.logger.Warn("config watcher: failed to load config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	w.lastMtime = info.ModTime()
	w.lastSize = info.Size()
	if hash == w.lastHash {
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current = cfg
	w.lastHash = hash
	w.mu.Unlock()

	w.logger.Info("config watcher: configuration reloaded", "path", w.path)

	// Outside the lock so the callback may call Current.
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

func (w *Watcher) loadAndHash() (*Config, [sha256.Size]byte, os.FileInfo, error) {
	var zero [sha256.Size]byte

	info, err := os.Stat(w.path)
	if err != nil {
		return nil, zero, nil, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, zero, nil, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data), w.env)
	if err != nil {
		return nil, zero, nil, err
	}
	return cfg, sha256.Sum256(data), info, nil
}
