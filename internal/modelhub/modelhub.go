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

// Package modelhub downloads files and repository snapshots from a hosted
// model registry. Unlike the byte downloader in internal/download,
// the source here is identified by repo id rather than a bare URL, and a
// local cache may satisfy a single-file request without any network call.
package modelhub

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/patrickmn/go-cache"

	"github.com/fussionstudio/agent/internal/download"
)

const (
	cacheClassificationTTL   = 10 * time.Minute
	cacheClassificationPurge = 20 * time.Minute
)

// Downloader is the subset of internal/download.Downloader that the model
// hub delegates byte transfer to.
type Downloader interface {
	Submit(ctx context.Context, url, path string, force bool) string
	Lookup(taskID string) (download.Task, bool)
}

// Hub resolves model-hub repo/file requests to local paths, memoizing
// single-file cache hits per repo/revision/file for a short TTL. A memoized
// hit is still confirmed with a stat of the local file.
type Hub struct {
	baseURL     string
	modelsDir   string
	sharedDir   string
	downloader  Downloader
	logger      *slog.Logger
	classifyTTL *cache.Cache
}

// New constructs a Hub. baseURL is the model registry's API root (e.g.
// "https://huggingface.co"); modelsDir/sharedDir are the fallback
// targets of resolveLocalDir's local-dir validation.
func New(baseURL, modelsDir, sharedDir string, downloader Downloader, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		baseURL:     strings.TrimRight(baseURL, "/"),
		modelsDir:   modelsDir,
		sharedDir:   sharedDir,
		downloader:  downloader,
		logger:      logger,
		classifyTTL: cache.New(cacheClassificationTTL, cacheClassificationPurge),
	}
}

// Download fetches a single file or a repository snapshot. It returns
// alreadyCached=true only when a single-file request was already present
// locally; repository downloads always report false, since
// true cache-vs-fresh determination for multi-file transfers is out of
// scope.
func (h *Hub) Download(ctx context.Context, repoID, localDir, filename string, allowPatterns []string, revision string) (alreadyCached bool, err error) {
	dir := h.resolveLocalDir(localDir)

	if filename != "" {
		return h.downloadFile(ctx, repoID, dir, filename, revision)
	}
	return false, h.downloadSnapshot(ctx, repoID, dir, allowPatterns, revision)
}

// resolveLocalDir implements the validation/fallback chain: use localDir
// if it exists and is writable; if it names a file, use its parent; fall
// back to the shared models directory, then to the models root.
func (h *Hub) resolveLocalDir(localDir string) string {
	if localDir == "" {
		return h.sharedDir
	}

	info, err := os.Stat(localDir)
	switch {
	case err == nil && info.IsDir():
		if h.writable(localDir) {
			return localDir
		}
	case err == nil && !info.IsDir():
		parent := filepath.Dir(localDir)
		if h.writable(parent) {
			return parent
		}
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(localDir, 0o755); mkErr == nil {
			return localDir
		}
	}

	if h.writable(h.sharedDir) || os.MkdirAll(h.sharedDir, 0o755) == nil {
		return h.sharedDir
	}
	return h.modelsDir
}

func (h *Hub) writable(dir string) bool {
	probe := filepath.Join(dir, ".write-probe")
	f, err := os.OpenFile(probe, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false
	}
	f.Close()
	os.Remove(probe)
	return true
}

func (h *Hub) downloadFile(ctx context.Context, repoID, dir, filename, revision string) (bool, error) {
	cacheKey := repoID + "@" + revision + "/" + filename
	destPath := filepath.Join(dir, filename)

	if _, cached := h.classifyTTL.Get(cacheKey); cached {
		if _, err := os.Stat(destPath); err == nil {
			return true, nil
		}
	}

	if _, err := os.Stat(destPath); err == nil {
		h.classifyTTL.Set(cacheKey, true, cache.DefaultExpiration)
		return true, nil
	}

	url := h.fileURL(repoID, revision, filename)
	taskID := h.downloader.Submit(ctx, url, filepath.Join(filepath.Base(dir), filename), false)
	if err := h.awaitTask(ctx, taskID); err != nil {
		return false, err
	}

	h.classifyTTL.Set(cacheKey, true, cache.DefaultExpiration)
	return false, nil
}

func (h *Hub) downloadSnapshot(ctx context.Context, repoID, dir string, allowPatterns []string, revision string) error {
	entries, err := h.listFiles(ctx, repoID, revision)
	if err != nil {
		return fmt.Errorf("listing %s: %w", repoID, err)
	}

	for _, entry := range entries {
		if !matchesAny(entry, allowPatterns) {
			continue
		}
		url := h.fileURL(repoID, revision, entry)
		dest := filepath.Join(filepath.Base(dir), entry)
		taskID := h.downloader.Submit(ctx, url, dest, false)
		if err := h.awaitTask(ctx, taskID); err != nil {
			h.logger.Error("snapshot file download failed", "repo", repoID, "file", entry, "error", err)
		}
	}
	return nil
}

func matchesAny(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, path); ok {
			return true
		}
	}
	return false
}

func (h *Hub) fileURL(repoID, revision, filename string) string {
	if revision == "" {
		revision = "main"
	}
	return fmt.Sprintf("%s/%s/resolve/%s/%s", h.baseURL, repoID, revision, filename)
}

// listFiles is the repository-tree listing call. It is a thin network
// round-trip kept minimal on purpose: the hub's own tree endpoint is the
// ground truth for what a snapshot contains.
func (h *Hub) listFiles(ctx context.Context, repoID, revision string) ([]string, error) {
	if revision == "" {
		revision = "main"
	}
	return fetchRepoTree(ctx, h.baseURL, repoID, revision)
}

func (h *Hub) awaitTask(ctx context.Context, taskID string) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			task, ok := h.downloader.Lookup(taskID)
			if !ok {
				return fmt.Errorf("unknown download task %s", taskID)
			}
			switch task.Status {
			case download.StatusCompleted:
				return nil
			case download.StatusFailedPermanent, download.StatusError:
				return fmt.Errorf("download failed: %s", task.Message)
			}
		}
	}
}
