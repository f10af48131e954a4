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

package httpserver

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type downloadModelRequest struct {
	URL   string `json:"url"`
	Path  string `json:"path"`
	Force bool   `json:"force"`
}

// handleDownloadModel submits a single-item download task directly,
// bypassing model-sync's local-size-vs-HEAD cache check.
func (h *handler) handleDownloadModel(w http.ResponseWriter, r *http.Request) {
	var req downloadModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.URL == "" || req.Path == "" {
		writeError(w, http.StatusBadRequest, "url and path are required")
		return
	}

	// Submit starts a goroutine that outlives this handler; detach it from
	// the request context so net/http canceling on return doesn't abort it.
	taskID := h.r.Downloader().Submit(context.WithoutCancel(r.Context()), req.URL, req.Path, req.Force)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "task_id": taskID})
}

// handleDownloadProgress inspects one download task by id.
func (h *handler) handleDownloadProgress(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")
	task, ok := h.r.Downloader().Lookup(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown download task: "+taskID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": task})
}

// handleDownloadTasks enumerates every tracked download task.
func (h *handler) handleDownloadTasks(w http.ResponseWriter, r *http.Request) {
	tasks := h.r.Downloader().All()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tasks": tasks, "count": len(tasks)})
}
