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
	"encoding/json"
	"io"
	"net/http"

	"github.com/fussionstudio/agent/internal/workflow"
)

// handleConvert normalizes an editor-format or already-API-format workflow
// body into an ExecutionWorkflow, using the shared node catalog for
// link-tracing order. The response is the bare execution map, pretty
// printed with no HTML escaping, matching what the backend's own job
// endpoint accepts as a prompt body.
func (h *handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(raw) == 0 {
		writeError(w, http.StatusBadRequest, "request body is empty")
		return
	}
	if !hasGraphShape(raw) {
		writeError(w, http.StatusBadRequest, "request body must contain nodes and links")
		return
	}

	exec, err := workflow.Normalize(raw, h.r.Catalog(), h.logger)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writePrettyJSON(w, http.StatusOK, exec)
}

// hasGraphShape reports whether raw is a body handleConvert can act on:
// either an editor-format graph carrying both nodes and links, or a body
// workflow.Normalize itself recognizes as already in API format.
func hasGraphShape(raw []byte) bool {
	if workflow.IsAPIFormat(raw) {
		return true
	}
	var probe struct {
		Nodes json.RawMessage `json:"nodes"`
		Links json.RawMessage `json:"links"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Nodes != nil && probe.Links != nil
}

// writePrettyJSON encodes body as indented JSON with HTML escaping
// disabled, for responses that are consumed as opaque prompt payloads
// rather than rendered into HTML.
func writePrettyJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	_ = enc.Encode(body)
}

// handleHealthz is a liveness probe for process supervisors and agentctl's
// health checker: it reports success as long as the HTTP server itself is
// answering requests, independent of tunnel or backend connectivity.
func (h *handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleTunnelStatus reports the tunnel supervisor's currently known public
// URL and whether the child process is alive.
func (h *handler) handleTunnelStatus(w http.ResponseWriter, r *http.Request) {
	url, ready, running := h.r.TunnelStatus()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"url":     url,
		"ready":   ready,
		"running": running,
	})
}
