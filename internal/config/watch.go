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

package config

import (
	"context"
	"log/slog"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// CriticalDeps is a hot-reloadable view of the critical-dependency set. The
// plugin installer reads Get() on every install rather than holding a
// stale copy from startup.
type CriticalDeps struct {
	mu   sync.RWMutex
	deps []string
}

// NewCriticalDeps returns a CriticalDeps seeded with the given initial list.
func NewCriticalDeps(initial []string) *CriticalDeps {
	return &CriticalDeps{deps: append([]string(nil), initial...)}
}

// Get returns a snapshot of the current critical-dependency list.
func (c *CriticalDeps) Get() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.deps))
	copy(out, c.deps)
	return out
}

func (c *CriticalDeps) set(deps []string) {
	c.mu.Lock()
	c.deps = deps
	c.mu.Unlock()
}

// WatchCriticalDeps watches path for writes and reloads the parsed
// dependency list into store on every change, until ctx is cancelled. If
// path is empty, it returns nil immediately: the in-process default list
// (or the one loaded at startup) is then the only source of truth.
//
// Failures to establish the watch are logged and non-fatal: the agent keeps
// running with whatever list it already has, per the "never abort on a
// config surface" policy carried from the control-plane client.
func WatchCriticalDeps(ctx context.Context, path string, store *CriticalDeps, logger *slog.Logger) error {
	if path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create critical-deps watcher", "error", err, "path", path)
		return err
	}

	if err := watcher.Add(path); err != nil {
		logger.Error("failed to watch critical-deps file", "error", err, "path", path)
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				deps, err := readCriticalDepsFile(path)
				if err != nil {
					logger.Error("failed to reload critical-deps file", "error", err, "path", path)
					continue
				}
				store.set(deps)
				logger.Info("reloaded critical-dependency list", "path", path, "count", len(deps))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("critical-deps watcher error", "error", err)
			}
		}
	}()

	return nil
}
