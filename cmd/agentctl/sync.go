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
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fussionstudio/agent/internal/cliutil"
)

func newSyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Trigger reconciliation against the control plane",
	}
	cmd.AddCommand(newSyncHostCommand())
	cmd.AddCommand(newSyncNodesCommand())
	cmd.AddCommand(newSyncModelsCommand())
	cmd.AddCommand(newSyncDependenciesCommand())
	return cmd
}

func newSyncHostCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "host",
		Short: "Re-register this machine's host facts and tunnel URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := cliutil.Request("GET", "/api/sync-host", nil, &out); err != nil {
				return err
			}
			return cliutil.PrintResult(out, "host registration sent")
		},
	}
}

func newSyncNodesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "Reconcile custom-node inventory against the control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := cliutil.Request("POST", "/api/sync-nodes", nil, &out); err != nil {
				return err
			}
			return cliutil.PrintResult(out, formatResultList(out["results"]))
		},
	}
}

func newSyncModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Reconcile model inventory against the control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := cliutil.Request("POST", "/api/sync-models", nil, &out); err != nil {
				return err
			}
			text := formatResultList(out["results"])
			if summary, err := json.Marshal(out["summary"]); err == nil {
				text += fmt.Sprintf("\nsummary: %s", summary)
			}
			return cliutil.PrintResult(out, text)
		},
	}
}

func newSyncDependenciesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dependencies",
		Short: "Start background dependency reconciliation",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := cliutil.Request("GET", "/api/dependencies", nil, &out); err != nil {
				return err
			}
			text := fmt.Sprintf("status=%v count=%v", out["status"], out["count"])
			return cliutil.PrintResult(out, text)
		},
	}
}

// formatResultList renders a decoded []any of per-item result maps as one
// line per item, falling back to a raw dump if the shape is unexpected.
func formatResultList(v any) string {
	items, ok := v.([]any)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	if len(items) == 0 {
		return "no items to reconcile"
	}

	text := ""
	for i, item := range items {
		if i > 0 {
			text += "\n"
		}
		m, ok := item.(map[string]any)
		if !ok {
			text += fmt.Sprintf("%v", item)
			continue
		}
		if status, ok := m["status"]; ok {
			text += fmt.Sprintf("  %v: %v", m["id"], status)
		} else {
			text += fmt.Sprintf("  %v: progress=%v", m["id"], m["progress"])
		}
		if msg, ok := m["message"].(string); ok && msg != "" {
			text += fmt.Sprintf(" (%s)", msg)
		}
	}
	return text
}
