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

package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/fussionstudio/agent/internal/download"
)

const inputRewriteConcurrency = 3

// FetchFunc downloads url into the backend's input directory under the
// given filename, blocking until the transfer completes or fails. The
// caller typically adapts this from internal/download.Downloader's
// Submit+Lookup pair.
type FetchFunc func(ctx context.Context, url, filename string) error

// RewriteInputs walks any JSON-shaped workflow value, finds every string
// that parses as an HTTPS URL on assetHost, downloads each distinct URL at
// most once (bounded by a semaphore of 3), and replaces every occurrence
// with the downloaded file's local name. Download failures leave the
// original URL in place and are logged, never aborting the rewrite.
func RewriteInputs(ctx context.Context, raw []byte, assetHost string, fetch FetchFunc, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	urls := collectAssetURLs(doc, assetHost)
	if len(urls) == 0 {
		return raw, nil
	}

	replacements := resolveReplacements(ctx, urls, fetch, logger)
	if len(replacements) == 0 {
		return raw, nil
	}

	rewritten := applyReplacements(doc, replacements)
	return json.Marshal(rewritten)
}

func collectAssetURLs(doc any, assetHost string) []string {
	seen := make(map[string]bool)
	var urls []string

	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case string:
			if isAssetURL(val, assetHost) && !seen[val] {
				seen[val] = true
				urls = append(urls, val)
			}
		case map[string]any:
			for _, child := range val {
				walk(child)
			}
		case []any:
			for _, child := range val {
				walk(child)
			}
		}
	}
	walk(doc)
	return urls
}

func isAssetURL(candidate, assetHost string) bool {
	u, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	return u.Scheme == "https" && u.Hostname() == assetHost
}

// synthesizeFilename builds <origStem>_<8-hex>.<origExt> from a URL's path,
// using a UUID-derived suffix to guarantee uniqueness across repeated
// downloads of distinctly named remote assets.
func synthesizeFilename(assetURL string) string {
	u, err := url.Parse(assetURL)
	base := assetURL
	if err == nil {
		base = path.Base(u.Path)
	}

	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]

	if stem == "" {
		stem = "asset"
	}
	return stem + "_" + suffix + ext
}

func resolveReplacements(ctx context.Context, urls []string, fetch FetchFunc, logger *slog.Logger) map[string]string {
	sem := semaphore.NewWeighted(inputRewriteConcurrency)
	var mu sync.Mutex
	replacements := make(map[string]string)
	var wg sync.WaitGroup

	for _, assetURL := range urls {
		assetURL := assetURL
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			filename := synthesizeFilename(assetURL)
			if err := fetch(ctx, assetURL, filename); err != nil {
				logger.Warn("input asset download failed, leaving URL in place", "url", assetURL, "error", err)
				return
			}

			mu.Lock()
			replacements[assetURL] = filename
			mu.Unlock()
		}()
	}
	wg.Wait()
	return replacements
}

// downloadPoller is the subset of internal/download.Downloader's API that
// NewDownloaderFetch needs; satisfied by *download.Downloader.
type downloadPoller interface {
	Submit(ctx context.Context, url, path string, force bool) string
	Lookup(taskID string) (download.Task, bool)
}

const fetchPollInterval = 200 * time.Millisecond

// NewDownloaderFetch adapts an internal/download.Downloader into a FetchFunc:
// it submits the asset as a download task into inputDir/filename and blocks,
// polling Lookup, until the transfer reaches a terminal state.
func NewDownloaderFetch(d downloadPoller, inputDir string) FetchFunc {
	return func(ctx context.Context, assetURL, filename string) error {
		dest := filepath.Join(inputDir, filename)
		taskID := d.Submit(ctx, assetURL, dest, false)

		ticker := time.NewTicker(fetchPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				task, ok := d.Lookup(taskID)
				if !ok {
					return fmt.Errorf("unknown download task %s", taskID)
				}
				switch task.Status {
				case download.StatusCompleted:
					return nil
				case download.StatusFailedPermanent, download.StatusError:
					return fmt.Errorf("downloading %s: %s", assetURL, task.Message)
				}
			}
		}
	}
}

func applyReplacements(doc any, replacements map[string]string) any {
	switch val := doc.(type) {
	case string:
		if replacement, ok := replacements[val]; ok {
			return replacement
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = applyReplacements(child, replacements)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = applyReplacements(child, replacements)
		}
		return out
	default:
		return val
	}
}
