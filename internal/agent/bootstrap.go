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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fussionstudio/agent/internal/config"
	"github.com/fussionstudio/agent/internal/controlplane"
	"github.com/fussionstudio/agent/internal/download"
	"github.com/fussionstudio/agent/internal/hostinfo"
	"github.com/fussionstudio/agent/internal/identity"
	"github.com/fussionstudio/agent/internal/modelhub"
	"github.com/fussionstudio/agent/internal/plugins"
	"github.com/fussionstudio/agent/internal/progress"
	"github.com/fussionstudio/agent/internal/tunnel"
	"github.com/fussionstudio/agent/internal/workflow"
)

// Agent owns the process-wide components and wires their data flow: the
// tunnel supervisor's URL-ready callback drives registration through the
// control-plane client, the host sampler supplies registration facts, the
// progress tracker correlates job completion, and reconciliation methods
// (SyncHost, SyncNodes, ...) are exposed to the HTTP surface.
type Agent struct {
	cfg      *config.Config
	identity identity.MachineIdentity
	cp       *controlplane.Client
	tunnel   *tunnel.Supervisor
	download *download.Downloader
	hub      *modelhub.Hub
	plugins  *plugins.Installer
	progress *progress.Tracker
	catalog  *workflow.MemCatalog
	logger   *slog.Logger
}

// New wires every component from cfg. It does not start any background
// loop; call Run to start the tunnel and progress subscriber.
func New(cfg *config.Config, logger *slog.Logger) (*Agent, error) {
	if logger == nil {
		logger = slog.Default()
	}

	id := identity.New(cfg.MachineID)

	cp, err := controlplane.New(cfg.ControlPlaneBaseURL, id, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("constructing control-plane client: %w", err)
	}

	dl := download.New(cfg.BackendBaseDir, logger)
	dl.SetBackendBaseURL(cfg.BackendBaseURL())

	hub := modelhub.New(cfg.ModelHubBaseURL, cfg.ModelsDir(), cfg.SharedModelsDir(), dl, logger)

	installer := plugins.New(cfg.CustomNodesDir(), "python", cfg.CriticalDepsStore.Get, logger)

	wsBase := strings.Replace(cfg.BackendBaseURL(), "http://", "ws://", 1)
	wsBase = strings.Replace(wsBase, "https://", "wss://", 1)
	tracker := progress.New(wsBase, cfg.MachineID, logger)

	a := &Agent{
		cfg:      cfg,
		identity: id,
		cp:       cp,
		download: dl,
		hub:      hub,
		plugins:  installer,
		progress: tracker,
		catalog:  workflow.NewMemCatalog(),
		logger:   logger,
	}

	a.tunnel = tunnel.New(cfg.TunnelBinary, cfg.TunnelPort, a.onTunnelURLReady, a.onHeartbeat, logger)

	return a, nil
}

// Run starts the tunnel supervisor and the progress subscriber and blocks
// until ctx is canceled. Reconciliation is driven separately, by the HTTP
// surface's handlers.
func (a *Agent) Run(ctx context.Context) {
	if !a.tunnel.Start(ctx) {
		a.logger.Error("tunnel failed to start; continuing without a public URL")
	}
	go a.progress.Run(ctx)
	go a.loadCatalog(ctx)

	<-ctx.Done()
	a.tunnel.Stop()
}

// loadCatalog fetches the backend's node-introspection endpoint once at
// startup so the workflow normalizer has catalog-order metadata available.
// A failure here is non-fatal: normalization degrades to best-effort
// ordering for every class.
func (a *Agent) loadCatalog(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BackendBaseURL()+"/object_info", nil)
	if err != nil {
		a.logger.Warn("failed to build node catalog request", "error", err)
		return
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		a.logger.Warn("failed to load node catalog from backend", "error", err)
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		a.logger.Warn("failed to read node catalog response", "error", err)
		return
	}

	loaded, err := workflow.LoadFromObjectInfo(data)
	if err != nil {
		a.logger.Warn("failed to parse node catalog", "error", err)
		return
	}

	loaded.Range(func(nodeType string, info workflow.ClassInfo) {
		a.catalog.Set(nodeType, info)
	})
}

// onTunnelURLReady registers the machine with the control plane as soon as
// a public URL is known.
func (a *Agent) onTunnelURLReady(url string) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	a.registerWithControlPlane(ctx, url)
}

// onHeartbeat re-registers on the tunnel supervisor's 30 s timer.
func (a *Agent) onHeartbeat() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	url, _ := a.tunnel.URL()
	a.registerWithControlPlane(ctx, url)
}

func (a *Agent) registerWithControlPlane(ctx context.Context, tunnelURL string) {
	facts := hostinfo.Collect(ctx)
	payload := hostinfo.Flatten(facts, tunnelURL, time.Now().UnixMilli())
	if _, err := a.cp.Post(ctx, "api/machines/connect", payload); err != nil {
		a.logger.Warn("control-plane registration failed", "error", err)
	}
}

// decodeInto re-marshals a generically-decoded control-plane response (an
// any produced by encoding/json's default unmarshal) into a typed target.
func decodeInto(value any, target any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
