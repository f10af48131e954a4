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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/fussionstudio/agent/internal/workflow"
)

// workflowRunPullPath is deliberately singular ("machine"), unlike every
// other reconciliation endpoint under the plural "machines" prefix.
const workflowRunPullPath = "api/machine/workflow-run"

// RunWorkflowRuns pulls the pending job queue and submits each one to the
// backend in turn: asset URLs are rewritten to local input files first, then
// the prompt is POSTed to the backend's queue endpoint, and the outcome is
// reported back to the control plane. One job's failure does not stop the
// rest; the orchestrator itself never retries a job.
func (a *Agent) RunWorkflowRuns(ctx context.Context) ([]WorkflowRunResult, error) {
	raw, err := a.cp.Get(ctx, workflowRunPullPath)
	if err != nil || raw == nil {
		return nil, err
	}

	var items []WorkflowRunItem
	if decodeErr := decodeInto(raw, &items); decodeErr != nil {
		a.logger.Warn("malformed workflow-run queue from control plane", "error", decodeErr)
		return nil, nil
	}

	fetch := workflow.NewDownloaderFetch(a.download, a.cfg.InputDir())

	results := make([]WorkflowRunResult, 0, len(items))
	for _, item := range items {
		results = append(results, a.runOneWorkflowRun(ctx, item, fetch))
	}
	return results, nil
}

func (a *Agent) runOneWorkflowRun(ctx context.Context, item WorkflowRunItem, fetch workflow.FetchFunc) WorkflowRunResult {
	rewritten, err := workflow.RewriteInputs(ctx, item.Prompt, a.cfg.AssetHost, fetch, a.logger)
	if err != nil {
		a.logger.Warn("workflow-run input rewrite failed", "id", item.ID, "error", err)
		return a.failWorkflowRun(ctx, item.ID, err)
	}

	jobID, err := a.submitPrompt(ctx, rewritten)
	if err != nil {
		a.logger.Warn("workflow-run submission failed", "id", item.ID, "error", err)
		return a.failWorkflowRun(ctx, item.ID, err)
	}

	if _, err := a.cp.Post(ctx, "api/workflow-run/"+item.ID+"/queue", map[string]any{"prompt_id": jobID}); err != nil {
		a.logger.Warn("failed to ack queued workflow-run", "id", item.ID, "error", err)
	}

	return WorkflowRunResult{ID: item.ID, Status: "queued", JobID: jobID}
}

func (a *Agent) failWorkflowRun(ctx context.Context, id string, cause error) WorkflowRunResult {
	if _, err := a.cp.Post(ctx, "api/workflow-run/"+id, map[string]any{
		"status": "failed",
		"error":  cause.Error(),
	}); err != nil {
		a.logger.Warn("failed to ack failed workflow-run", "id", id, "error", err)
	}
	return WorkflowRunResult{ID: id, Status: "failed", Message: cause.Error()}
}

// submitPrompt POSTs an execution-format workflow to the backend's queue
// endpoint and returns the prompt id it assigns.
func (a *Agent) submitPrompt(ctx context.Context, prompt json.RawMessage) (string, error) {
	body, err := json.Marshal(map[string]json.RawMessage{"prompt": prompt})
	if err != nil {
		return "", fmt.Errorf("encoding prompt: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BackendBaseURL()+"/api/prompt", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building prompt request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submitting prompt: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading prompt response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("backend returned HTTP %d: %s", resp.StatusCode, data)
	}

	var decoded struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		return "", fmt.Errorf("decoding prompt response: %w", err)
	}
	if decoded.PromptID == "" {
		return "", fmt.Errorf("backend response missing prompt_id")
	}

	return decoded.PromptID, nil
}
