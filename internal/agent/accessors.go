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
	"github.com/fussionstudio/agent/internal/config"
	"github.com/fussionstudio/agent/internal/download"
	"github.com/fussionstudio/agent/internal/progress"
	"github.com/fussionstudio/agent/internal/workflow"
)

// Downloader exposes the byte downloader so the HTTP surface can submit and
// inspect single-item download tasks directly.
func (a *Agent) Downloader() *download.Downloader {
	return a.download
}

// Progress exposes the progress tracker so the HTTP surface can answer
// prompt-status queries without going through a reconciliation method.
func (a *Agent) Progress() *progress.Tracker {
	return a.progress
}

// Catalog exposes the shared node catalog so the HTTP surface can normalize
// workflows on demand.
func (a *Agent) Catalog() *workflow.MemCatalog {
	return a.catalog
}

// TunnelStatus reports the tunnel supervisor's currently known public URL
// and whether the child process is still running.
func (a *Agent) TunnelStatus() (url string, ready bool, running bool) {
	url, ready = a.tunnel.URL()
	return url, ready, a.tunnel.Running()
}

// Config exposes the loaded configuration for HTTP handlers that need the
// backend base URL or asset host directly.
func (a *Agent) Config() *config.Config {
	return a.cfg
}
