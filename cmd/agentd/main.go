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
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fussionstudio/agent/internal/agent"
	"github.com/fussionstudio/agent/internal/config"
	"github.com/fussionstudio/agent/internal/httpserver"
	"github.com/fussionstudio/agent/internal/lifecycle"
	"github.com/fussionstudio/agent/internal/log"
	"github.com/fussionstudio/agent/internal/telemetry"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		httpAddr     = flag.String("http", "", "HTTP listen address, overriding AGENT_HTTP_ADDR")
		backendDir   = flag.String("backend-dir", "", "Backend install directory, overriding AGENT_BACKEND_DIR")
		pidFile      = flag.String("pidfile", "", "PID file path; skipped if empty")
		lifecycleLog = flag.String("lifecycle-log", "", "Lifecycle event log path; skipped if empty")
		showVersion  = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("agentd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *httpAddr != "" {
		cfg.HTTPListenAddr = *httpAddr
	}
	if *backendDir != "" {
		cfg.BackendBaseDir = *backendDir
	}

	a, err := agent.New(cfg, logger)
	if err != nil {
		logger.Error("failed to construct agent", "error", err)
		os.Exit(1)
	}

	var lcLogger *lifecycle.LifecycleLogger
	if *lifecycleLog != "" {
		lcLogger = lifecycle.NewLifecycleLogger(*lifecycleLog)
		if err := lcLogger.LogStart(version, os.Args[1:], ""); err != nil {
			logger.Warn("failed to write lifecycle start event", "error", err)
		}
	}

	var pidManager *lifecycle.PIDFileManager
	if *pidFile != "" {
		pidManager = lifecycle.NewPIDFileManager(*pidFile)
		if err := pidManager.Create(os.Getpid()); err != nil {
			logger.Error("failed to create pid file", "path", *pidFile, "error", err)
			if lcLogger != nil {
				_ = lcLogger.LogStartFailure(err)
			}
			os.Exit(1)
		}
		defer func() {
			if err := pidManager.Remove(); err != nil {
				logger.Warn("failed to remove pid file", "path", *pidFile, "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryProvider, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    "agentd",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.OTLPEndpoint,
	})
	if err != nil {
		logger.Warn("telemetry setup failed, continuing without tracing", "error", err)
	} else {
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := telemetryProvider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	if err := config.WatchCriticalDeps(ctx, cfg.CriticalDepsFile, cfg.CriticalDepsStore, logger); err != nil {
		logger.Warn("critical-dependency hot reload disabled", "error", err)
	}

	go a.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.HTTPListenAddr,
		Handler:           httpserver.New(a, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	startedAt := time.Now()
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()
	if lcLogger != nil {
		if err := lcLogger.LogStartSuccess(os.Getpid(), 1, time.Since(startedAt)); err != nil {
			logger.Warn("failed to write lifecycle start-success event", "error", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		stopStart := time.Now()
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during http shutdown", "error", err)
			if lcLogger != nil {
				_ = lcLogger.LogStopFailure(os.Getpid(), err)
			}
			return
		}
		if lcLogger != nil {
			_ = lcLogger.LogStopSuccess(os.Getpid(), time.Since(stopStart))
		}
	case err := <-errCh:
		if err != nil {
			logger.Error("http server error", "error", err)
			cancel()
			os.Exit(1)
		}
	}
}
