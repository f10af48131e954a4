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

// StartDependencyReconciliation pulls the dependency-check queue and
// dispatches each item to the plugin installer (custom_node) or model hub
// (model) on a background goroutine, posting the combined result list back
// to the control plane when every item settles. It returns immediately
// with the pulled item count so the HTTP handler can respond without
// waiting on `GET /api/dependencies`.
func (a *Agent) StartDependencyReconciliation(ctx context.Context) (int, error) {
	raw, err := a.cp.Get(ctx, "api/machines/dependencies")
	if err != nil || raw == nil {
		return 0, err
	}

	var items []DependencyItem
	if decodeErr := decodeInto(raw, &items); decodeErr != nil {
		a.logger.Warn("malformed dependency queue from control plane", "error", decodeErr)
		return 0, nil
	}

	go a.reconcileDependencies(context.WithoutCancel(ctx), items)

	return len(items), nil
}

func (a *Agent) reconcileDependencies(ctx context.Context, items []DependencyItem) {
	results := make([]DependencyResult, 0, len(items))
	for _, item := range items {
		results = append(results, a.reconcileOneDependency(ctx, item))
	}

	if _, err := a.cp.Post(ctx, "api/machines/dependencies", map[string]any{"results": results}); err != nil {
		a.logger.Warn("failed to post dependency reconciliation results", "error", err)
	}
}

func (a *Agent) reconcileOneDependency(ctx context.Context, item DependencyItem) DependencyResult {
	switch item.Type {
	case "custom_node":
		if item.URL == "" {
			return DependencyResult{ID: item.ID, Message: "missing url"}
		}
		if _, err := a.plugins.Install(ctx, item.URL); err != nil {
			a.logger.Warn("dependency custom_node install failed", "id", item.ID, "error", err)
			return DependencyResult{ID: item.ID, Message: err.Error()}
		}
		return DependencyResult{ID: item.ID, Present: true}

	case "model":
		if item.ModelRepoID == "" {
			return DependencyResult{ID: item.ID, Message: "missing model_repo_id"}
		}
		if _, err := a.hub.Download(ctx, item.ModelRepoID, item.ModelLocalDir, "", item.ModelAllowPatterns, ""); err != nil {
			a.logger.Warn("dependency model fetch failed", "id", item.ID, "error", err)
			return DependencyResult{ID: item.ID, Message: err.Error()}
		}
		return DependencyResult{ID: item.ID, Present: true}

	default:
		return DependencyResult{ID: item.ID, Message: "unknown dependency type: " + item.Type}
	}
}
