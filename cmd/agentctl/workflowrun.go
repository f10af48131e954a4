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
	"github.com/spf13/cobra"

	"github.com/fussionstudio/agent/internal/cliutil"
)

func newWorkflowRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "workflow-run",
		Short: "Pull and submit every pending workflow run",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out map[string]any
			if err := cliutil.Request("POST", "/api/workflow-run", nil, &out); err != nil {
				return err
			}
			return cliutil.PrintResult(out, formatResultList(out["results"]))
		},
	}
}
