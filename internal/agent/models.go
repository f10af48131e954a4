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

package agent

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/semaphore"
)

const modelSyncConcurrency = 8

// SyncModels reconciles the model inventory: pulls the control
// plane's model list and runs up to 8 cache/fetch checks in parallel,
// returning a per-item result list plus aggregate counts.
func (a *Agent) SyncModels(ctx context.Context) ([]ModelSyncResult, ModelSyncSummary, error) {
	raw, err := a.cp.Get(ctx, "api/machines/models")
	if err != nil || raw == nil {
		return nil, ModelSyncSummary{}, err
	}

	var items []ModelItem
	if decodeErr := decodeInto(raw, &items); decodeErr != nil {
		a.logger.Warn("malformed model inventory from control plane", "error", decodeErr)
		return nil, ModelSyncSummary{}, nil
	}

	results := make([]ModelSyncResult, len(items))
	cachedFlags := make([]bool, len(items))
	sem := semaphore.NewWeighted(modelSyncConcurrency)
	var wg sync.WaitGroup

	for i, item := range items {
		i, item := i, item
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			results[i], cachedFlags[i] = a.syncOneModel(ctx, item)
		}()
	}
	wg.Wait()

	summary := ModelSyncSummary{Total: len(results)}
	for i, r := range results {
		switch {
		case r.Message != "":
			summary.Failed++
		case cachedFlags[i]:
			summary.Cached++
		default:
			summary.Fetching++
		}
	}

	return results, summary, nil
}

// syncOneModel resolves a single model entry against the local file and,
// when it is missing or stale, schedules it on the byte downloader. It
// never blocks on the transfer itself: a scheduled download is reported at
// progress 0 and later observed to completion through /download_tasks.
//
// The local-size-vs-HEAD check is the cache-hit fast path: if the
// destination already exists and its size matches the remote
// Content-Length, the item is reported complete without starting a
// transfer. A local file whose size differs from the remote one is
// scheduled as a forced download so that it is replaced. force skips the
// local check entirely and always schedules.
func (a *Agent) syncOneModel(ctx context.Context, item ModelItem) (ModelSyncResult, bool) {
	if item.URL == "" || item.Path == "" {
		return ModelSyncResult{ID: item.ID, Message: "missing url or path"}, false
	}

	force := item.Force
	if !item.Force {
		dest := filepath.Join(a.cfg.BackendBaseDir, filepath.Clean(item.Path))
		if info, statErr := os.Stat(dest); statErr == nil {
			if remoteSize, ok := a.download.HeadContentLength(ctx, item.URL); ok {
				if info.Size() == remoteSize {
					return ModelSyncResult{ID: item.ID, Path: item.Path, Progress: 100}, true
				}
				force = true
			}
		}
	}

	// Submit starts a goroutine that outlives this call; detach it so the
	// request context backing a /api/sync-models call doesn't cancel it.
	a.download.Submit(context.WithoutCancel(ctx), item.URL, item.Path, force)
	return ModelSyncResult{ID: item.ID, Path: item.Path, Progress: 0}, false
}
