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
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fussionstudio/agent/internal/config"
)

func TestPullUpdate_ReturnsErrorWhenGitMissing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	a := &Agent{
		cfg:    &config.Config{BackendBaseDir: t.TempDir()},
		logger: slog.Default(),
	}

	_, err := a.PullUpdate(t.Context())
	require.Error(t, err)
	require.Contains(t, err.Error(), "git is not installed")
}
