// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher keeps the latest valid configuration loaded from a file.
// Edits are picked up after a debounce delay. A reload that fails to parse
// or validate is logged and the previous configuration stays current.
type ConfigWatcher struct {
	// path is the absolute path of the watched file
	path string

	// fsWatcher is the underlying filesystem watcher
	fsWatcher *fsnotify.Watcher

	// logger is used for structured logging
	logger *slog.Logger

	// debounceDelay is the delay before reloading after file changes
	debounceDelay time.Duration

	// onReload is called after each successful reload (optional)
	onReload func(*Config)

	// mu protects current, pending and closed
	mu      sync.RWMutex
	current *Config
	pending *time.Timer
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ConfigWatcherConfig configures a ConfigWatcher.
type ConfigWatcherConfig struct {
	// Path is the configuration file to watch
	Path string

	// Logger is used for structured logging (optional)
	Logger *slog.Logger

	// DebounceDelay is the delay before reloading after file changes (defaults to 200ms)
	DebounceDelay time.Duration

	// OnReload is called with each newly loaded configuration (optional)
	OnReload func(*Config)
}

// NewConfigWatcher loads the file once and starts watching it. The initial
// load must succeed.
func NewConfigWatcher(cfg ConfigWatcherConfig) (*ConfigWatcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}

	absPath, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", cfg.Path, err)
	}

	initial, err := loadValid(absPath)
	if err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Editors often replace the file, so watch the directory.
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch path %s: %w", absPath, err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	debounceDelay := cfg.DebounceDelay
	if debounceDelay == 0 {
		debounceDelay = 200 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &ConfigWatcher{
		path:          absPath,
		fsWatcher:     fsWatcher,
		logger:        logger,
		debounceDelay: debounceDelay,
		onReload:      cfg.OnReload,
		current:       initial,
		ctx:           ctx,
		cancel:        cancel,
	}

	w.wg.Add(1)
	go w.processEvents()

	logger.Debug("watching mcp config", "path", absPath)
	return w, nil
}

func loadValid(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns the absolute path of the watched file.
func (w *ConfigWatcher) Path() string {
	return w.path
}

// Current returns the latest valid configuration.
func (w *ConfigWatcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Reload reads the file immediately. On failure the current configuration
// is kept and the error returned.
func (w *ConfigWatcher) Reload() error {
	cfg, err := loadValid(w.path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.current = cfg
	onReload := w.onReload
	w.mu.Unlock()

	w.logger.Info("mcp config reloaded", "path", w.path, "servers", cfg.Len())
	if onReload != nil {
		onReload(cfg)
	}
	return nil
}

// processEvents processes filesystem events and schedules reloads.
func (w *ConfigWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				w.scheduleReload()
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", "error", err)

		case <-w.ctx.Done():
			return
		}
	}
}

// scheduleReload (re)starts the debounce timer.
func (w *ConfigWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return
	}
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounceDelay, w.triggerReload)
}

func (w *ConfigWatcher) triggerReload() {
	w.mu.Lock()
	w.pending = nil
	closed := w.closed
	w.mu.Unlock()

	if closed {
		return
	}
	if err := w.Reload(); err != nil {
		w.logger.Error("failed to reload mcp config, keeping previous", "path", w.path, "error", err)
	}
}

// Close stops watching.
func (w *ConfigWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()

	return w.fsWatcher.Close()
}
