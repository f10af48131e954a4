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

package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDaemon(t *testing.T, routes map[string]func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for path, fn := range routes {
		mux.HandleFunc(path, fn)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runCommand(t *testing.T, addr string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(append([]string{"--addr", addr, "--json"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestStatusCommand_MergesTunnelAndServiceStatus(t *testing.T) {
	srv := newTestDaemon(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"/tunnel/status": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "url": "https://example.trycloudflare.com", "ready": true, "running": true})
		},
		"/api/service-status": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "service_status": "connected"})
		},
	})

	_, err := runCommand(t, srv.URL, "status")
	require.NoError(t, err)
}

func TestSyncNodesCommand_PostsToSyncNodes(t *testing.T) {
	var gotMethod string
	srv := newTestDaemon(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"/api/sync-nodes": func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"results": []map[string]any{{"id": "n1", "status": "installed"}},
			})
		},
	})

	_, err := runCommand(t, srv.URL, "sync", "nodes")
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
}

func TestPullUpdateCommand_ReportsFailureAsError(t *testing.T) {
	srv := newTestDaemon(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"/api/pull-update": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "git is not installed"})
		},
	})

	_, err := runCommand(t, srv.URL, "pull-update")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "git is not installed")
}

func TestWorkflowRunCommand_ReportsQueuedResults(t *testing.T) {
	srv := newTestDaemon(t, map[string]func(w http.ResponseWriter, r *http.Request){
		"/api/workflow-run": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": true,
				"results": []map[string]any{{"id": "run-1", "status": "queued", "job_id": "job-1"}},
			})
		},
	})

	_, err := runCommand(t, srv.URL, "workflow-run")
	require.NoError(t, err)
}
