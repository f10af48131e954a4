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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fussionstudio/agent/internal/cliutil"
	"github.com/fussionstudio/agent/internal/lifecycle"
)

func newStopCommand() *cobra.Command {
	var (
		pidFile string
		timeout time.Duration
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a running agentd by its PID file",
		Long: `Reads the PID from --pidfile, verifies it is actually an agentd process
(not a stale or reused PID), and sends SIGTERM. With --force, SIGKILL
follows if the process hasn't exited by --timeout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pidFile == "" {
				return fmt.Errorf("--pidfile is required")
			}

			manager := lifecycle.NewPIDFileManager(pidFile)
			pid, err := manager.Read()
			if err != nil {
				return fmt.Errorf("reading pid file: %w", err)
			}

			if !lifecycle.IsAgentProcess(pid) {
				return fmt.Errorf("pid %d in %s is not an agentd process; refusing to signal it", pid, pidFile)
			}

			if err := lifecycle.GracefulShutdown(pid, timeout, force); err != nil {
				return fmt.Errorf("stopping pid %d: %w", pid, err)
			}

			fmt.Printf("agentd (pid %d) stopped\n", pid)
			return nil
		},
	}

	cmd.Flags().StringVar(&pidFile, "pidfile", "", "PID file written by agentd's --pidfile flag")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "time to wait for graceful exit before --force kills it")
	cmd.Flags().BoolVar(&force, "force", false, "send SIGKILL if the process has not exited by --timeout")

	return cmd
}

func newWaitCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Block until agentd's /healthz endpoint reports success",
		RunE: func(cmd *cobra.Command, args []string) error {
			checker := lifecycle.NewHealthChecker(cliutil.BaseURL() + "/healthz")
			if err := checker.WaitUntilHealthy(timeout); err != nil {
				return fmt.Errorf("waiting for agentd: %w", err)
			}
			fmt.Println("agentd is healthy")
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "maximum time to wait")
	return cmd
}
