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

package modelhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

// fetchRepoTree lists every blob in a model-hub repository at a revision,
// flattening directories. It mirrors the registry's "list repo files"
// endpoint shape; non-2xx responses are surfaced as errors since, unlike
// the byte downloader, a missing listing has no local fallback.
func fetchRepoTree(ctx context.Context, baseURL, repoID, revision string) ([]string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/api/models/%s/tree/%s", baseURL, repoID, revision)
	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("tree listing returned status %d", resp.StatusCode)
	}

	var entries []treeEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type == "directory" {
			continue
		}
		paths = append(paths, e.Path)
	}
	return paths, nil
}
