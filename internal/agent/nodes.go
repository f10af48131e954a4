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

import "context"

// SyncNodes reconciles the custom-node inventory: pulls the control
// plane's plugin list, installs each via the plugin installer, and acks the
// ids that ended up present (newly installed or already there) back to the
// control plane.
func (a *Agent) SyncNodes(ctx context.Context) ([]NodeSyncResult, error) {
	raw, err := a.cp.Get(ctx, "api/machines/custom_nodes")
	if err != nil || raw == nil {
		return nil, err
	}

	var items []CustomNodeItem
	if err := decodeInto(raw, &items); err != nil {
		a.logger.Warn("malformed custom-node inventory from control plane", "error", err)
		return nil, nil
	}

	results := make([]NodeSyncResult, 0, len(items))
	var installedIDs []string

	for _, item := range items {
		if item.GitURL == "" {
			results = append(results, NodeSyncResult{ID: item.ID, Status: "error", Message: "missing git_url"})
			continue
		}

		existed, err := a.plugins.Install(ctx, item.GitURL)
		if err != nil {
			a.logger.Warn("custom node install failed", "id", item.ID, "git_url", item.GitURL, "error", err)
			results = append(results, NodeSyncResult{ID: item.ID, Status: "error", Message: err.Error()})
			continue
		}

		status := "installed"
		if existed {
			status = "already_present"
		}
		results = append(results, NodeSyncResult{ID: item.ID, Status: status})
		installedIDs = append(installedIDs, item.ID)
	}

	if len(installedIDs) > 0 {
		if _, err := a.cp.Post(ctx, "api/machines/custom_nodes", map[string]any{"installed": installedIDs}); err != nil {
			a.logger.Warn("failed to ack installed custom nodes", "error", err)
		}
	}

	return results, nil
}
