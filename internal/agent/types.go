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

// Package agent is the bootstrapper and reconciliation orchestrator. It owns
// the control-plane client, tunnel supervisor, host sampler, progress
// tracker, and the per-concern downloaders/installers, and wires their data
// flow: tunnel URL → registration → heartbeat → reconciliation.
package agent

import "encoding/json"

// CustomNodeItem is one entry of the control plane's custom-node inventory.
type CustomNodeItem struct {
	ID     string `json:"id"`
	GitURL string `json:"git_url"`
}

// NodeSyncResult reports one custom-node reconciliation outcome.
type NodeSyncResult struct {
	ID      string `json:"id"`
	Status  string `json:"status"` // installed | already_present | error
	Message string `json:"message,omitempty"`
}

// ModelItem is one entry of the control plane's model inventory: a byte
// download, keyed by url+path like /download_model rather than a model-hub
// repo id.
type ModelItem struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Path  string `json:"path"`
	Force bool   `json:"force,omitempty"`
}

// ModelSyncResult reports one model reconciliation outcome.
type ModelSyncResult struct {
	ID       string `json:"id"`
	Path     string `json:"path,omitempty"`
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`
}

// ModelSyncSummary is the aggregate counts posted alongside per-item results.
type ModelSyncSummary struct {
	Total    int `json:"total"`
	Cached   int `json:"cached"`
	Fetching int `json:"fetching"`
	Failed   int `json:"failed"`
}

// DependencyItem is one entry of the control plane's dependency-check
// queue: a desired-state record that is either a custom_node (installed
// via the plugin installer) or a model (fetched via the model hub).
type DependencyItem struct {
	ID                 string   `json:"id"`
	Type               string   `json:"type"` // "model" | "custom_node"
	URL                string   `json:"url,omitempty"`
	ModelRepoID        string   `json:"model_repo_id,omitempty"`
	ModelLocalDir      string   `json:"model_local_dir,omitempty"`
	ModelAllowPatterns []string `json:"model_allow_patterns,omitempty"`
	Name               string   `json:"name,omitempty"`
}

// DependencyResult reports one dependency-check outcome.
type DependencyResult struct {
	ID      string `json:"id"`
	Present bool   `json:"present"`
	Message string `json:"message,omitempty"`
}

// WorkflowRunItem is one pending job pulled from the control plane.
type WorkflowRunItem struct {
	ID     string          `json:"id"`
	Prompt json.RawMessage `json:"prompt"`
}

// WorkflowRunResult reports one job's immediate submission outcome.
type WorkflowRunResult struct {
	ID      string `json:"id"`
	Status  string `json:"status"` // queued | failed
	JobID   string `json:"job_id,omitempty"`
	Message string `json:"message,omitempty"`
}
