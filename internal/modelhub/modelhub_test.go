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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fussionstudio/agent/internal/download"
)

type fakeDownloader struct {
	submitted []string
	status    download.Status
}

func (f *fakeDownloader) Submit(ctx context.Context, url, path string, force bool) string {
	f.submitted = append(f.submitted, url)
	return url
}

func (f *fakeDownloader) Lookup(taskID string) (download.Task, bool) {
	return download.Task{Status: f.status, Progress: 100}, true
}

func TestDownload_SingleFileCacheHit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.safetensors"), []byte("x"), 0o644))

	h := New("https://hub.example.com", dir, dir, &fakeDownloader{status: download.StatusCompleted}, nil)
	cached, err := h.Download(context.Background(), "org/repo", dir, "model.safetensors", nil, "")
	require.NoError(t, err)
	require.True(t, cached)
}

func TestDownload_SingleFileMissingTriggersFetch(t *testing.T) {
	dir := t.TempDir()
	fd := &fakeDownloader{status: download.StatusCompleted}

	h := New("https://hub.example.com", dir, dir, fd, nil)
	cached, err := h.Download(context.Background(), "org/repo", dir, "model.safetensors", nil, "")
	require.NoError(t, err)
	require.False(t, cached)
	require.Len(t, fd.submitted, 1)
}

func TestResolveLocalDir_FallsBackWhenUnwritable(t *testing.T) {
	shared := t.TempDir()
	h := New("https://hub.example.com", t.TempDir(), shared, &fakeDownloader{}, nil)

	resolved := h.resolveLocalDir("/root/definitely-not-writable-xyz")
	require.Equal(t, shared, resolved)
}

func TestResolveLocalDir_UsesParentWhenTargetIsFile(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "notadir")
	require.NoError(t, os.WriteFile(filePath, []byte("x"), 0o644))

	h := New("https://hub.example.com", t.TempDir(), t.TempDir(), &fakeDownloader{}, nil)
	resolved := h.resolveLocalDir(filePath)
	require.Equal(t, dir, resolved)
}

func TestMatchesAny(t *testing.T) {
	require.True(t, matchesAny("a/b.safetensors", []string{"**/*.safetensors"}))
	require.True(t, matchesAny("a/b.safetensors", nil))
	require.False(t, matchesAny("a/b.json", []string{"**/*.safetensors"}))
}
