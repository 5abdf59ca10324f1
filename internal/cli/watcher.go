// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// CONFIG WATCHER
// =============================================================================

// ConfigWatcher calls onChange after the config file is written, created,
// replaced or removed. Bursts of events within the debounce window produce
// one call.
//
// The parent directory is watched rather than the file so editors that
// save by rename are still seen.
type ConfigWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	onChange func()

	mu     sync.Mutex
	timer  *time.Timer
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewConfigWatcher starts watching path.
func NewConfigWatcher(path string, debounce time.Duration, onChange func()) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	cw := &ConfigWatcher{
		watcher:  watcher,
		path:     path,
		debounce: debounce,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	cw.wg.Add(1)
	go cw.run()
	return cw, nil
}

func (cw *ConfigWatcher) run() {
	defer cw.wg.Done()
	for {
		select {
		case <-cw.done:
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				cw.schedule()
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("CONFIG_WATCH_ERROR | path=%s err=%v", cw.path, err)
		}
	}
}

func (cw *ConfigWatcher) schedule() {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.closed {
		return
	}
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.timer = time.AfterFunc(cw.debounce, cw.fire)
}

func (cw *ConfigWatcher) fire() {
	cw.mu.Lock()
	closed := cw.closed
	cw.mu.Unlock()
	if !closed {
		cw.onChange()
	}
}

// Close stops watching. Pending callbacks are dropped.
func (cw *ConfigWatcher) Close() error {
	cw.mu.Lock()
	if cw.closed {
		cw.mu.Unlock()
		return nil
	}
	cw.closed = true
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.mu.Unlock()

	close(cw.done)
	err := cw.watcher.Close()
	cw.wg.Wait()
	return err
}
