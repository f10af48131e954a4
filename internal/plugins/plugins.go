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

// Package plugins clones backend plugin repositories and installs their
// declared Python dependencies under a pinned-dependency protection policy
// : critical packages are never upgraded once present.
package plugins

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// Installer clones plugin repositories under <backend>/custom_nodes and
// installs their requirements.txt through the backend's package environment.
type Installer struct {
	customNodesDir string
	pythonBin      string
	criticalDeps   func() []string
	logger         *slog.Logger
}

// New constructs an Installer. criticalDeps is called fresh on every
// install so a hot-reloaded critical-dependency list (internal/config's
// fsnotify watch) takes effect without restarting the agent.
func New(customNodesDir, pythonBin string, criticalDeps func() []string, logger *slog.Logger) *Installer {
	if logger == nil {
		logger = slog.Default()
	}
	if pythonBin == "" {
		pythonBin = "python"
	}
	return &Installer{
		customNodesDir: customNodesDir,
		pythonBin:      pythonBin,
		criticalDeps:   criticalDeps,
		logger:         logger,
	}
}

type repoRef struct {
	user      string
	repo      string
	branch    string
	subfolder string
}

var githubURLPattern = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+?)(?:\.git)?(?:/tree/([^/]+)(?:/(.*))?)?/?$`)

func parseGitURL(gitURL string) (repoRef, error) {
	m := githubURLPattern.FindStringSubmatch(gitURL)
	if m == nil {
		return repoRef{}, fmt.Errorf("unrecognized plugin repository URL: %s", gitURL)
	}
	return repoRef{user: m[1], repo: m[2], branch: m[3], subfolder: m[4]}, nil
}

func (r repoRef) cloneURL() string {
	return fmt.Sprintf("https://github.com/%s/%s.git", r.user, r.repo)
}

// Install clones gitUrl (or leaves an existing clone alone) and always
// runs dependency installation on its requirements.txt, in a background
// worker so the caller's HTTP response is never blocked on pip.
//
// Returns existed=true if the target directory was already present.
func (ins *Installer) Install(ctx context.Context, gitURL string) (existed bool, err error) {
	ref, err := parseGitURL(gitURL)
	if err != nil {
		return false, err
	}

	dest := filepath.Join(ins.customNodesDir, ref.repo)

	if info, statErr := os.Stat(dest); statErr == nil && info.IsDir() {
		existed = true
	} else {
		if err := ins.clone(ctx, ref, dest); err != nil {
			return false, err
		}
	}

	go ins.installDependenciesBackground(dest, ref.repo)

	return existed, nil
}

func (ins *Installer) clone(ctx context.Context, ref repoRef, dest string) error {
	args := []string{"clone"}
	if ref.branch != "" {
		args = append(args, "--single-branch", "--branch", ref.branch)
	}
	args = append(args, ref.cloneURL(), dest)

	cmd := exec.CommandContext(ctx, "git", args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git clone %s: %w: %s", ref.cloneURL(), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (ins *Installer) installDependenciesBackground(repoDir, repoName string) {
	reqPath := filepath.Join(repoDir, "requirements.txt")
	if _, err := os.Stat(reqPath); err != nil {
		return
	}

	lines, err := parseRequirements(reqPath)
	if err != nil {
		ins.logger.Error("failed to parse requirements.txt", "plugin", repoName, "error", err)
		return
	}

	critical := map[string]bool{}
	for _, name := range ins.criticalDeps() {
		critical[strings.ToLower(name)] = true
	}

	installed := installedPackages(ins.pythonBin)

	var safe []string
	for _, line := range lines {
		name := requirementName(line)
		if critical[strings.ToLower(name)] {
			if installed[strings.ToLower(name)] {
				ins.logger.Info("skipping protected dependency", "plugin", repoName, "package", name)
				continue
			}
		}
		safe = append(safe, line)
	}

	if len(safe) == 0 {
		return
	}

	tmp, err := os.CreateTemp("", "agent-requirements-*.txt")
	if err != nil {
		ins.logger.Error("failed to create temp requirements file", "plugin", repoName, "error", err)
		return
	}
	defer os.Remove(tmp.Name())

	for _, line := range safe {
		fmt.Fprintln(tmp, line)
	}
	tmp.Close()

	cmd := exec.Command(ins.pythonBin, "-m", "pip", "install", "-r", tmp.Name())
	if out, err := cmd.CombinedOutput(); err != nil {
		ins.logger.Error("dependency install failed", "plugin", repoName, "error", err, "output", string(out))
	} else {
		ins.logger.Info("dependencies installed", "plugin", repoName, "count", len(safe))
	}
}

var requirementOpPattern = regexp.MustCompile(`^([A-Za-z0-9_.\-]+)\s*(?:>=|==|<=|!=|~=|>|<)`)

// requirementName extracts the bare package name from a requirements.txt
// line like "torch>=2.0" or "numpy==1.26.0".
func requirementName(line string) string {
	if m := requirementOpPattern.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return strings.TrimSpace(line)
}

func parseRequirements(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// installedPackages shells out to pip's freeze listing to determine which
// critical packages are already present, so they are never silently
// upgraded by a plugin's requirements.txt.
func installedPackages(pythonBin string) map[string]bool {
	cmd := exec.Command(pythonBin, "-m", "pip", "freeze")
	out, err := cmd.Output()
	result := map[string]bool{}
	if err != nil {
		return result
	}
	for _, line := range strings.Split(string(out), "\n") {
		name := requirementName(strings.TrimSpace(line))
		if name != "" {
			result[strings.ToLower(name)] = true
		}
	}
	return result
}
