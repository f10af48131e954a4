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

package cliutil

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	statusOK    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	statusWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange
	statusError = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Bold(true)
)

// RenderRow renders one "label: value" line of a status report, with the
// label dimmed and bold so a multi-row report reads as a table even though
// nothing here actually lays out columns.
func RenderRow(label string, value any) string {
	return fmt.Sprintf("%s %v", labelStyle.Render(label+":"), value)
}

// RenderBool renders a boolean as a colored "yes"/"no".
func RenderBool(ok bool) string {
	if ok {
		return statusOK.Render("yes")
	}
	return statusError.Render("no")
}

// RenderState renders a free-form state string, coloring a known-good value
// green, a known-bad value red, and anything else (e.g. "unknown") orange.
func RenderState(state string, good, bad string) string {
	switch state {
	case good:
		return statusOK.Render(state)
	case bad:
		return statusError.Render(state)
	default:
		return statusWarn.Render(state)
	}
}
