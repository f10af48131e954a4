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
	"strings"

	"github.com/spf13/cobra"

	"github.com/fussionstudio/agent/internal/cliutil"
)

// statusResult combines the daemon's tunnel and backend-connectivity
// reports into one view for the operator.
type statusResult struct {
	Tunnel  map[string]any `json:"tunnel"`
	Service map[string]any `json:"service"`
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report tunnel and backend connectivity status",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	var tunnel map[string]any
	if err := cliutil.Request("GET", "/tunnel/status", nil, &tunnel); err != nil {
		return err
	}

	var service map[string]any
	if err := cliutil.Request("GET", "/api/service-status", nil, &service); err != nil {
		return err
	}

	result := statusResult{Tunnel: tunnel, Service: service}

	ready, _ := tunnel["ready"].(bool)
	running, _ := tunnel["running"].(bool)
	serviceStatus := fmt.Sprintf("%v", service["service_status"])

	rows := []string{
		cliutil.RenderRow("tunnel url", tunnel["url"]),
		cliutil.RenderRow("tunnel ready", cliutil.RenderBool(ready)),
		cliutil.RenderRow("tunnel running", cliutil.RenderBool(running)),
		cliutil.RenderRow("backend", cliutil.RenderState(serviceStatus, "connected", "disconnected")),
	}
	return cliutil.PrintResult(result, strings.Join(rows, "\n"))
}
