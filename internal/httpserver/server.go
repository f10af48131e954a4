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

// Package httpserver exposes the agent's reconciliation and download
// operations over HTTP, the surface the control plane and any local tooling
// drive it through.
package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fussionstudio/agent/internal/agent"
	"github.com/fussionstudio/agent/internal/config"
	"github.com/fussionstudio/agent/internal/download"
	"github.com/fussionstudio/agent/internal/log"
	"github.com/fussionstudio/agent/internal/progress"
	"github.com/fussionstudio/agent/internal/workflow"
)

// Reconciler is the subset of *agent.Agent's operations the HTTP surface
// drives, named here so handlers can be exercised against a fake in tests.
type Reconciler interface {
	SyncHost(ctx context.Context) error
	SyncNodes(ctx context.Context) ([]agent.NodeSyncResult, error)
	SyncModels(ctx context.Context) ([]agent.ModelSyncResult, agent.ModelSyncSummary, error)
	StartDependencyReconciliation(ctx context.Context) (int, error)
	RunWorkflowRuns(ctx context.Context) ([]agent.WorkflowRunResult, error)
	PullUpdate(ctx context.Context) (agent.PullUpdateResult, error)
	Downloader() *download.Downloader
	Progress() *progress.Tracker
	Catalog() *workflow.MemCatalog
	TunnelStatus() (url string, ready bool, running bool)
	Config() *config.Config
}

// New builds the routed HTTP handler: chi's request-id middleware, the
// project's own structured-logging and panic-recovery middleware, a
// permissive CORS policy (the control plane's browser-facing dashboard is a
// different origin than the tunnel URL), and every route below.
func New(r Reconciler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(log.Recoverer(logger))
	mux.Use(log.HTTPMiddleware(logger))
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type", "x-machine-id"},
		MaxAge:         300,
	}))

	h := &handler{r: r, logger: logger}

	mux.Get("/healthz", h.handleHealthz)
	mux.Get("/metrics", promhttp.Handler().ServeHTTP)

	mux.Route("/workflow/convert", func(sr chi.Router) {
		sr.Get("/", h.handleConvert)
		sr.Post("/", h.handleConvert)
	})

	mux.Get("/tunnel/status", h.handleTunnelStatus)

	mux.Get("/api/sync-host", h.handleSyncHost)

	mux.Route("/api/sync-nodes", func(sr chi.Router) {
		sr.Get("/", h.handleSyncNodes)
		sr.Post("/", h.handleSyncNodes)
	})
	mux.Route("/api/sync-models", func(sr chi.Router) {
		sr.Get("/", h.handleSyncModels)
		sr.Post("/", h.handleSyncModels)
	})

	mux.Get("/api/dependencies", h.handleDependencies)

	mux.Route("/api/workflow-run", func(sr chi.Router) {
		sr.Get("/", h.handleWorkflowRun)
		sr.Post("/", h.handleWorkflowRun)
	})

	mux.Post("/download_model", h.handleDownloadModel)
	mux.Get("/download_progress/{taskId}", h.handleDownloadProgress)
	mux.Get("/download_tasks", h.handleDownloadTasks)

	mux.Get("/api/prompt-status", h.handlePromptStatus)
	mux.Get("/api/prompt-status/all", h.handlePromptStatusAll)
	mux.Get("/api/service-status", h.handleServiceStatus)

	mux.Route("/api/pull-update", func(sr chi.Router) {
		sr.Get("/", h.handlePullUpdate)
		sr.Post("/", h.handlePullUpdate)
	})

	return mux
}

type handler struct {
	r      Reconciler
	logger *slog.Logger
}

var _ Reconciler = (*agent.Agent)(nil)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "error": message})
}
