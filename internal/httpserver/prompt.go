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
	"fmt"
	"io"
	"net/http"
)

type historyMessage [2]json.RawMessage

type historyStatus struct {
	StatusStr string           `json:"status_str"`
	Messages  []historyMessage `json:"messages"`
}

type historyEntry struct {
	Status  historyStatus             `json:"status"`
	Outputs map[string]map[string]any `json:"outputs"`
}

type queueData struct {
	Running [][]any `json:"queue_running"`
	Pending [][]any `json:"queue_pending"`
}

var historyStatusMapping = map[string]string{
	"success": "success",
	"error":   "failed",
	"running": "running",
	"queued":  "in-queue",
}

type parsedHistory struct {
	StartTime *float64
	EndTime   *float64
	Error     string
	Status    string
	Files     []string
}

// handlePromptStatus merges the live progress map, the backend's job
// history, and the backend's run queue into a single status object for one
// prompt id.
func (h *handler) handlePromptStatus(w http.ResponseWriter, r *http.Request) {
	if !h.r.Progress().Connected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"success":        false,
			"error":          "backend event subscriber is not connected",
			"service_status": "disconnected",
		})
		return
	}

	promptID := r.URL.Query().Get("id")
	if promptID == "" {
		writeError(w, http.StatusBadRequest, "missing required query parameter: id")
		return
	}

	progressEntry, hasProgress := h.r.Progress().Lookup(promptID)

	history, err := h.fetchHistory(r.Context(), promptID)
	if err != nil {
		h.logger.Warn("failed to fetch backend history", "prompt_id", promptID, "error", err)
	}

	queue, err := h.fetchQueue(r.Context())
	if err != nil {
		h.logger.Warn("failed to fetch backend queue", "error", err)
	}

	parsed := parseHistory(history)
	isCompleted := history != nil
	queueStatus := queueStatusFor(promptID, queue)

	if !isCompleted && !hasProgress && queueStatus == "" {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"success":   false,
			"error":     fmt.Sprintf("no data found for prompt_id: %s", promptID),
			"prompt_id": promptID,
		})
		return
	}

	status := "unknown"
	switch {
	case isCompleted:
		status = parsed.Status
	case queueStatus != "":
		status = queueStatus
	}

	body := map[string]any{
		"success":        true,
		"prompt_id":      promptID,
		"start_time":     parsed.StartTime,
		"end_time":       parsed.EndTime,
		"error":          parsed.Error,
		"status":         status,
		"files":          parsed.Files,
		"service_status": "connected",
	}
	if hasProgress {
		body["progress"] = progressEntry
	}
	writeJSON(w, http.StatusOK, body)
}

// handlePromptStatusAll dumps the entire progress map.
func (h *handler) handlePromptStatusAll(w http.ResponseWriter, r *http.Request) {
	if !h.r.Progress().Connected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"success":        false,
			"error":          "backend event subscriber is not connected",
			"service_status": "disconnected",
		})
		return
	}

	all := h.r.Progress().All()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"data":           all,
		"count":          len(all),
		"service_status": "connected",
	})
}

// handleServiceStatus reports the subscriber's connection flag.
func (h *handler) handleServiceStatus(w http.ResponseWriter, r *http.Request) {
	connected := h.r.Progress().Connected()
	status := "disconnected"
	if connected {
		status = "connected"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"service_status": status,
		"connected":      connected,
	})
}

func (h *handler) fetchHistory(ctx context.Context, promptID string) (*historyEntry, error) {
	url := h.r.Config().BackendBaseURL() + "/api/history/" + promptID
	data, err := h.getJSON(ctx, url)
	if err != nil {
		return nil, err
	}

	var byID map[string]historyEntry
	if err := json.Unmarshal(data, &byID); err != nil {
		return nil, err
	}
	entry, ok := byID[promptID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (h *handler) fetchQueue(ctx context.Context) (*queueData, error) {
	url := h.r.Config().BackendBaseURL() + "/api/queue"
	data, err := h.getJSON(ctx, url)
	if err != nil {
		return nil, err
	}
	var q queueData
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

func (h *handler) getJSON(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("backend returned HTTP %d for %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

func queueStatusFor(promptID string, q *queueData) string {
	if q == nil {
		return ""
	}
	for _, item := range q.Running {
		if matchesPromptID(item, promptID) {
			return "running"
		}
	}
	for _, item := range q.Pending {
		if matchesPromptID(item, promptID) {
			return "in-queue"
		}
	}
	return ""
}

func matchesPromptID(item []any, promptID string) bool {
	if len(item) < 2 {
		return false
	}
	id, ok := item[1].(string)
	return ok && id == promptID
}

func parseHistory(h *historyEntry) parsedHistory {
	if h == nil {
		return parsedHistory{Status: "failed"}
	}

	status := historyStatusMapping[h.Status.StatusStr]
	if status == "" {
		status = "failed"
	}

	result := parsedHistory{Status: status}
	for _, msg := range h.Status.Messages {
		var kind string
		if err := json.Unmarshal(msg[0], &kind); err != nil {
			continue
		}
		switch kind {
		case "execution_start":
			var data struct {
				Timestamp float64 `json:"timestamp"`
			}
			if json.Unmarshal(msg[1], &data) == nil {
				result.StartTime = &data.Timestamp
			}
		case "execution_success":
			var data struct {
				Timestamp float64 `json:"timestamp"`
			}
			if json.Unmarshal(msg[1], &data) == nil {
				result.EndTime = &data.Timestamp
			}
		case "execution_error":
			var data struct {
				ExceptionMessage string `json:"exception_message"`
			}
			if json.Unmarshal(msg[1], &data) == nil {
				result.Error = data.ExceptionMessage
			}
		}
	}

	for _, nodeOutputs := range h.Outputs {
		for _, outputList := range nodeOutputs {
			items, ok := outputList.([]any)
			if !ok {
				continue
			}
			for _, item := range items {
				obj, ok := item.(map[string]any)
				if !ok {
					continue
				}
				filename, ok := obj["filename"].(string)
				if !ok || filename == "" {
					continue
				}
				fileType, _ := obj["type"].(string)
				if fileType == "" {
					fileType = "temp"
				}
				subfolder, _ := obj["subfolder"].(string)
				result.Files = append(result.Files, fmt.Sprintf(
					"/api/view?filename=%s&type=%s&subfolder=%s", filename, fileType, subfolder))
			}
		}
	}

	return result
}
