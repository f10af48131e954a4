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

// Package config loads the agent's process-wide configuration from the
// environment, an optional YAML override file, and the OS keyring, and
// watches the critical-dependency list for hot reload.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	conductorerrors "github.com/fussionstudio/agent/pkg/errors"
)

// defaultCriticalDeps is the backend's pinned package environment: numerics,
// vision, and ML libraries that a plugin's requirements.txt must never
// upgrade. Rewritten in situ as the backend evolves (see CriticalDepsFile).
var defaultCriticalDeps = []string{
	"torch",
	"torchvision",
	"torchaudio",
	"xformers",
	"numpy",
	"pillow",
	"opencv-python",
	"transformers",
	"safetensors",
	"accelerate",
}

const keyringService = "fussion-agent"

// Config is the agent's immutable process-wide configuration, loaded once at
// startup. The fields are not changed after load; the hot-reloadable view of
// the critical-dependency list is CriticalDepsStore, which a fsnotify watch
// registered by WatchCriticalDeps updates.
type Config struct {
	MachineID           string
	BackendBaseDir      string
	BackendPort         int
	ControlPlaneBaseURL string
	TunnelBinary        string
	TunnelPort          int
	HFHome              string
	ModelHubBaseURL     string
	AssetHost           string
	CriticalDeps        []string
	HTTPListenAddr      string
	OTLPEndpoint        string

	// CriticalDepsFile is the path watched for hot-reload of CriticalDeps.
	// Empty when no file-backed override was configured.
	CriticalDepsFile string

	// CriticalDepsStore is the live, hot-reloadable view of CriticalDeps,
	// seeded from it at Load time. Components that must see a fsnotify
	// reload without restarting (the plugin installer) read this, not the
	// static CriticalDeps slice above.
	CriticalDepsStore *CriticalDeps
}

// fileOverride is the shape of an optional agent.yaml config file. Any field
// left zero-valued does not override the corresponding environment value.
type fileOverride struct {
	MachineID           string   `yaml:"machine_id"`
	BackendBaseDir      string   `yaml:"backend_base_dir"`
	BackendPort         int      `yaml:"backend_port"`
	ControlPlaneBaseURL string   `yaml:"control_plane_base_url"`
	TunnelBinary        string   `yaml:"tunnel_binary"`
	HFHome              string   `yaml:"hf_home"`
	CriticalDeps        []string `yaml:"critical_deps"`
	HTTPListenAddr      string   `yaml:"http_listen_addr"`
}

// Load builds a Config from environment variables, optionally overridden by
// the file named by AGENT_CONFIG_FILE (YAML), with MachineID additionally
// resolvable from the OS keyring ahead of the environment variable.
//
// Load never returns a Config with an empty MachineID or BackendBaseDir
// silently; callers that need those must check the returned error, which is
// a *conductorerrors.ConfigError when either is missing.
func Load() (*Config, error) {
	cfg := &Config{
		MachineID:           os.Getenv("MACHINE_ID"),
		BackendBaseDir:      os.Getenv("AGENT_BACKEND_DIR"),
		BackendPort:         8188,
		ControlPlaneBaseURL: os.Getenv("AGENT_CONTROL_PLANE_URL"),
		TunnelBinary:        firstNonEmpty(os.Getenv("AGENT_TUNNEL_BINARY"), "cloudflared"),
		TunnelPort:          8188,
		HFHome:              os.Getenv("HF_HOME"),
		ModelHubBaseURL:     firstNonEmpty(os.Getenv("AGENT_MODEL_HUB_URL"), "https://huggingface.co"),
		AssetHost:           firstNonEmpty(os.Getenv("AGENT_ASSET_HOST"), "fussion.studio"),
		CriticalDeps:        append([]string(nil), defaultCriticalDeps...),
		HTTPListenAddr:      firstNonEmpty(os.Getenv("AGENT_HTTP_ADDR"), ":8189"),
		CriticalDepsFile:    os.Getenv("AGENT_CRITICAL_DEPS_FILE"),
		OTLPEndpoint:        os.Getenv("AGENT_OTLP_ENDPOINT"),
	}

	if portStr := os.Getenv("AGENT_BACKEND_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, conductorerrors.Wrapf(err, "parsing AGENT_BACKEND_PORT=%q", portStr)
		}
		cfg.BackendPort = port
		cfg.TunnelPort = port
	}

	if path := os.Getenv("AGENT_CONFIG_FILE"); path != "" {
		if err := applyFileOverride(cfg, path); err != nil {
			return nil, err
		}
	}

	if cfg.MachineID == "" {
		if token, err := keyring.Get(keyringService, "machine-id"); err == nil {
			cfg.MachineID = token
		}
	}

	if cfg.CriticalDepsFile != "" {
		if deps, err := readCriticalDepsFile(cfg.CriticalDepsFile); err == nil {
			cfg.CriticalDeps = deps
		}
	}
	cfg.CriticalDepsStore = NewCriticalDeps(cfg.CriticalDeps)

	if cfg.MachineID == "" {
		return nil, &conductorerrors.ConfigError{
			Key:    "MACHINE_ID",
			Reason: "no machine identity found in environment, config file, or OS keyring",
		}
	}
	if cfg.BackendBaseDir == "" {
		return nil, &conductorerrors.ConfigError{
			Key:    "AGENT_BACKEND_DIR",
			Reason: "backend install directory is not configured",
		}
	}

	return cfg, nil
}

func applyFileOverride(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return conductorerrors.Wrapf(err, "reading config file %s", path)
	}

	var override fileOverride
	if err := yaml.Unmarshal(data, &override); err != nil {
		return conductorerrors.Wrapf(err, "parsing config file %s", path)
	}

	if override.MachineID != "" {
		cfg.MachineID = override.MachineID
	}
	if override.BackendBaseDir != "" {
		cfg.BackendBaseDir = override.BackendBaseDir
	}
	if override.BackendPort != 0 {
		cfg.BackendPort = override.BackendPort
	}
	if override.ControlPlaneBaseURL != "" {
		cfg.ControlPlaneBaseURL = override.ControlPlaneBaseURL
	}
	if override.TunnelBinary != "" {
		cfg.TunnelBinary = override.TunnelBinary
	}
	if override.HFHome != "" {
		cfg.HFHome = override.HFHome
	}
	if len(override.CriticalDeps) > 0 {
		cfg.CriticalDeps = override.CriticalDeps
	}
	if override.HTTPListenAddr != "" {
		cfg.HTTPListenAddr = override.HTTPListenAddr
	}

	return nil
}

// readCriticalDepsFile parses a plain-text critical-dependency list, one
// package name per line, blank lines and "#"-comments ignored.
func readCriticalDepsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var deps []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		deps = append(deps, line)
	}
	return deps, nil
}

// SetMachineIDInKeyring stores token in the OS keyring under the same
// service/key Load checks on startup, so a later Load picks it up without
// MACHINE_ID being set in the environment.
func SetMachineIDInKeyring(token string) error {
	return keyring.Set(keyringService, "machine-id", token)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// CustomNodesDir returns <backend>/custom_nodes, the plugin installer's root.
func (c *Config) CustomNodesDir() string {
	return filepath.Join(c.BackendBaseDir, "custom_nodes")
}

// ModelsDir returns <backend>/models, the model-registry downloader's root.
func (c *Config) ModelsDir() string {
	return filepath.Join(c.BackendBaseDir, "models")
}

// SharedModelsDir returns the model-sync fallback directory when a
// requested local directory cannot be created or written.
func (c *Config) SharedModelsDir() string {
	return filepath.Join(c.ModelsDir(), "shared")
}

// InputDir returns <backend>/input, where the input rewriter publishes
// downloaded assets.
func (c *Config) InputDir() string {
	return filepath.Join(c.BackendBaseDir, "input")
}

// BackendBaseURL returns the loopback URL the agent talks to the backend on.
func (c *Config) BackendBaseURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", c.BackendPort)
}
