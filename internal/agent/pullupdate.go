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
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// selfUpdateRepoURL and selfUpdateRepoName identify the one fixed repository
// the agent keeps current under custom_nodes, distinct from the
// control-plane-driven plugin inventory reconciled by SyncNodes.
const (
	selfUpdateRepoURL  = "https://github.com/fussionstudio/agent-nodes"
	selfUpdateRepoName = "agent-nodes"
)

// PullUpdateResult reports the self-update outcome.
type PullUpdateResult struct {
	Updated   bool   `json:"updated"`
	Message   string `json:"message"`
	TargetDir string `json:"target_dir"`
}

// PullUpdate clones the fixed self-update repository into custom_nodes if
// absent, or fetches and fast-forwards it if already present, then hands it
// to the plugin installer to pick up any requirements.txt change.
func (a *Agent) PullUpdate(ctx context.Context) (PullUpdateResult, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return PullUpdateResult{}, fmt.Errorf("git is not installed")
	}

	nodesDir := a.cfg.CustomNodesDir()
	if err := os.MkdirAll(nodesDir, 0o755); err != nil {
		return PullUpdateResult{}, fmt.Errorf("creating custom_nodes directory: %w", err)
	}

	target := filepath.Join(nodesDir, selfUpdateRepoName)

	result, err := a.syncSelfUpdateRepo(ctx, target)
	if err != nil {
		return PullUpdateResult{}, err
	}
	result.TargetDir = target

	if _, err := a.plugins.Install(ctx, selfUpdateRepoURL); err != nil {
		a.logger.Warn("self-update dependency install failed", "error", err)
	}

	return result, nil
}

func (a *Agent) syncSelfUpdateRepo(ctx context.Context, target string) (PullUpdateResult, error) {
	info, statErr := os.Stat(target)
	if statErr != nil || !info.IsDir() {
		if err := cloneSelfUpdateRepo(ctx, target); err != nil {
			return PullUpdateResult{}, err
		}
		return PullUpdateResult{Updated: true, Message: "repository cloned successfully"}, nil
	}

	if _, err := os.Stat(filepath.Join(target, ".git")); err != nil {
		a.logger.Warn("self-update directory exists but is not a git repository, replacing", "dir", target)
		if err := os.RemoveAll(target); err != nil {
			return PullUpdateResult{}, fmt.Errorf("removing non-git directory %s: %w", target, err)
		}
		if err := cloneSelfUpdateRepo(ctx, target); err != nil {
			return PullUpdateResult{}, err
		}
		return PullUpdateResult{Updated: true, Message: "directory replaced and repository cloned"}, nil
	}

	return updateSelfUpdateRepo(ctx, target)
}

func cloneSelfUpdateRepo(ctx context.Context, target string) error {
	cmd := exec.CommandContext(ctx, "git", "clone", selfUpdateRepoURL, target)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git clone %s: %w: %s", selfUpdateRepoURL, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func updateSelfUpdateRepo(ctx context.Context, target string) (PullUpdateResult, error) {
	fetch := exec.CommandContext(ctx, "git", "fetch", "origin")
	fetch.Dir = target
	if out, err := fetch.CombinedOutput(); err != nil {
		return PullUpdateResult{}, fmt.Errorf("git fetch origin: %w: %s", err, strings.TrimSpace(string(out)))
	}

	localRev, _ := gitRevision(ctx, target, "HEAD")
	remoteRev, remoteBranch := remoteRevision(ctx, target)

	if remoteRev != "" && localRev == remoteRev {
		return PullUpdateResult{Updated: false, Message: "repository is already up to date"}, nil
	}

	branch := remoteBranch
	if branch == "" {
		branch = "main"
	}
	pull := exec.CommandContext(ctx, "git", "pull", "origin", branch)
	pull.Dir = target
	if out, err := pull.CombinedOutput(); err != nil {
		return PullUpdateResult{}, fmt.Errorf("git pull origin %s: %w: %s", branch, err, strings.TrimSpace(string(out)))
	}

	return PullUpdateResult{Updated: true, Message: "repository updated successfully"}, nil
}

func gitRevision(ctx context.Context, dir, ref string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", ref)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// remoteRevision tries origin/main then origin/master, returning whichever
// resolves along with the branch name it resolved against.
func remoteRevision(ctx context.Context, dir string) (rev, branch string) {
	for _, candidate := range []string{"main", "master"} {
		if rev, err := gitRevision(ctx, dir, "origin/"+candidate); err == nil {
			return rev, candidate
		}
	}
	return "", ""
}
