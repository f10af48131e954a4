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

import "net/http"

// handleSyncHost forces a registration POST using the agent's current host
// facts and tunnel URL.
func (h *handler) handleSyncHost(w http.ResponseWriter, r *http.Request) {
	if err := h.r.SyncHost(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleSyncNodes reconciles the custom-node inventory and returns the
// per-item result list.
func (h *handler) handleSyncNodes(w http.ResponseWriter, r *http.Request) {
	results, err := h.r.SyncNodes(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": results})
}

// handleSyncModels reconciles the model inventory and returns the per-item
// result list alongside the aggregate summary.
func (h *handler) handleSyncModels(w http.ResponseWriter, r *http.Request) {
	results, summary, err := h.r.SyncModels(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": results, "summary": summary})
}

// handleDependencies starts background dependency reconciliation and
// responds immediately with the pulled item count.
func (h *handler) handleDependencies(w http.ResponseWriter, r *http.Request) {
	count, err := h.r.StartDependencyReconciliation(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "processing", "count": count})
}

// handleWorkflowRun pulls and submits every pending workflow run.
func (h *handler) handleWorkflowRun(w http.ResponseWriter, r *http.Request) {
	results, err := h.r.RunWorkflowRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "results": results})
}

// handlePullUpdate clones or updates the fixed self-update repository.
func (h *handler) handlePullUpdate(w http.ResponseWriter, r *http.Request) {
	result, err := h.r.PullUpdate(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
			"message": "pull-update failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":          true,
		"message":          "pull-update completed successfully",
		"repository":       result,
		"target_directory": result.TargetDir,
	})
}
