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

// Command agentctl is the operator's command-line front end for a running
// agentd: it talks to the daemon's HTTP surface, it never touches the
// backend or control plane directly.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fussionstudio/agent/internal/cliutil"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agentctl",
		Short: "Operate a running fussion agent daemon",
		Long: `agentctl drives a running agentd over its local HTTP surface: checking
tunnel and backend status, triggering node/model/dependency reconciliation,
running queued workflow runs, and pulling a node/model update bundle.

By default it talks to http://127.0.0.1:8189; override with --addr or
AGENTCTL_ADDR.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	addr, jsonOut := cliutil.RegisterFlagPointers()
	cmd.PersistentFlags().StringVar(addr, "addr", "", "agentd HTTP address (default http://127.0.0.1:8189)")
	cmd.PersistentFlags().BoolVar(jsonOut, "json", false, "output in JSON format")

	cmd.AddCommand(newInitCommand())
	cmd.AddCommand(newStatusCommand())
	cmd.AddCommand(newSyncCommand())
	cmd.AddCommand(newWorkflowRunCommand())
	cmd.AddCommand(newPullUpdateCommand())
	cmd.AddCommand(newStopCommand())
	cmd.AddCommand(newWaitCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print agentctl version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("agentctl %s (commit: %s, built: %s)\n", version, commit, buildDate)
			return nil
		},
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
