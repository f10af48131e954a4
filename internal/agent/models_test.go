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
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fussionstudio/agent/internal/config"
	"github.com/fussionstudio/agent/internal/download"
)

func newModelSyncAgent(t *testing.T, remoteSize int64, getCalled *bool) (*Agent, string) {
	t.Helper()

	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && getCalled != nil {
			*getCalled = true
		}
		w.Header().Set("Content-Length", strconv.FormatInt(remoteSize, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(make([]byte, remoteSize))
		}
	}))
	t.Cleanup(remote.Close)

	root := t.TempDir()
	cfg := &config.Config{BackendBaseDir: root}
	a := &Agent{
		cfg:      cfg,
		download: download.New(root, slog.Default()),
		logger:   slog.Default(),
	}
	return a, remote.URL
}

func TestSyncOneModel_LocalFileMatchesRemoteSize_ReportsCachedNoDownload(t *testing.T) {
	var getCalled bool
	a, remoteURL := newModelSyncAgent(t, 10, &getCalled)

	relPath := filepath.Join("models", "a", "f.bin")
	dest := filepath.Join(a.cfg.BackendBaseDir, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0o755))
	require.NoError(t, os.WriteFile(dest, make([]byte, 10), 0o644))

	result, cached := a.syncOneModel(t.Context(), ModelItem{ID: "m1", URL: remoteURL, Path: relPath})

	assert.True(t, cached)
	assert.Equal(t, "m1", result.ID)
	assert.Equal(t, relPath, result.Path)
	assert.Equal(t, 100, result.Progress)
	assert.Empty(t, result.Message)
	assert.False(t, getCalled, "expected no network GET when local file already matches")
}

func TestSyncOneModel_LocalFileStale_SchedulesDownload(t *testing.T) {
	a, remoteURL := newModelSyncAgent(t, 1000, nil)

	relPath := filepath.Join("models", "a", "f.bin")
	dest := filepath.Join(a.cfg.BackendBaseDir, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(dest), 0o755))
	require.NoError(t, os.WriteFile(dest, make([]byte, 10), 0o644))

	result, cached := a.syncOneModel(t.Context(), ModelItem{ID: "m1", URL: remoteURL, Path: relPath})

	assert.False(t, cached)
	assert.Equal(t, "m1", result.ID)
	assert.Equal(t, relPath, result.Path)
	assert.Equal(t, 0, result.Progress)

	task, ok := a.download.Lookup(remoteURL + ":" + filepath.Clean(relPath))
	require.True(t, ok, "expected a download task to have been scheduled")
	assert.Equal(t, remoteURL, task.URL)

	require.Eventually(t, func() bool {
		tsk, _ := a.download.Lookup(remoteURL + ":" + filepath.Clean(relPath))
		return tsk.Status == download.StatusCompleted
	}, time.Second, 10*time.Millisecond)
}

func TestSyncOneModel_MissingURLOrPath_ReportsFailure(t *testing.T) {
	a, _ := newModelSyncAgent(t, 10, nil)

	result, cached := a.syncOneModel(t.Context(), ModelItem{ID: "m2"})

	assert.False(t, cached)
	assert.Equal(t, "m2", result.ID)
	assert.NotEmpty(t, result.Message)
}
