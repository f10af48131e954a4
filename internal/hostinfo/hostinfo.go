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

// Package hostinfo collects best-effort host facts for registration and
// heartbeat. Every field has a defined default so the flattened
// registration payload is always well-formed, even when a probe fails.
package hostinfo

import (
	"context"
	"fmt"
	"runtime"
)

// GPU describes one detected graphics accelerator.
type GPU struct {
	Name        string
	TotalVRAMMB int64
	UsedVRAMMB  int64
	FreeVRAMMB  int64
	UtilPercent int
	Vendor      string
}

// Mount describes disk capacity at one mount point.
type Mount struct {
	Path       string
	TotalBytes int64
	FreeBytes  int64
}

// Facts is a point-in-time snapshot of host capabilities.
type Facts struct {
	OSArch       string
	Processor    string
	PhysicalCPUs int
	LogicalCPUs  int
	TotalRAMGB   float64
	GPUs         []GPU
	Mounts       []Mount
}

// Collect gathers host facts. It never returns an error: individual probe
// failures degrade the corresponding field to a sentinel value rather than
// aborting registration: collection is best-effort.
func Collect(ctx context.Context) Facts {
	facts := Facts{
		OSArch:       fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		Processor:    "unknown",
		PhysicalCPUs: runtime.NumCPU(),
		LogicalCPUs:  runtime.NumCPU(),
	}

	if ram, err := totalRAMGB(); err == nil {
		facts.TotalRAMGB = ram
	}

	facts.GPUs = collectGPUs(ctx)
	if len(facts.GPUs) == 0 {
		facts.GPUs = []GPU{{Name: "none", Vendor: "none"}}
	}

	facts.Mounts = collectMounts()

	return facts
}

// collectGPUs tries NVIDIA CLI enumeration first, then the fallbackGPUProbe
// hook if it is set, and otherwise returns an empty slice. No OS-level
// display enumeration is done.
func collectGPUs(ctx context.Context) []GPU {
	if gpus, err := nvidiaSMIGPUs(ctx); err == nil && len(gpus) > 0 {
		return gpus
	}
	if fallbackGPUProbe != nil {
		if gpus := fallbackGPUProbe(); len(gpus) > 0 {
			return gpus
		}
	}
	return nil
}

// fallbackGPUProbe, when non-nil, supplies GPU facts when nvidia-smi is
// absent. No file in this package sets it, so it is nil by default.
var fallbackGPUProbe func() []GPU

// RegistrationPayload is the flattened shape posted to the control plane's
// connect/heartbeat endpoint.
type RegistrationPayload struct {
	GPU             string  `json:"gpu"`
	VRAMGB          float64 `json:"vram"`
	CPU             string  `json:"cpu"`
	RAMGB           float64 `json:"ram"`
	TotalDiskGB     float64 `json:"total_disk"`
	AvailableDiskGB float64 `json:"available_disk"`
	Endpoint        string  `json:"endpoint"`
	Timestamp       int64   `json:"timestamp"`
}

// Flatten reduces Facts plus the currently known tunnel endpoint and a
// caller-supplied Unix-millis timestamp into the registration payload
// shape. GPU name/VRAM are taken from the first detected accelerator.
func Flatten(facts Facts, endpoint string, timestampMillis int64) RegistrationPayload {
	payload := RegistrationPayload{
		GPU:       "none",
		CPU:       facts.Processor,
		RAMGB:     round2(facts.TotalRAMGB),
		Endpoint:  endpoint,
		Timestamp: timestampMillis,
	}

	if len(facts.GPUs) > 0 {
		payload.GPU = facts.GPUs[0].Name
		payload.VRAMGB = round2(float64(facts.GPUs[0].TotalVRAMMB) / 1024)
	}

	var total, free int64
	for _, m := range facts.Mounts {
		total += m.TotalBytes
		free += m.FreeBytes
	}
	const gb = 1024 * 1024 * 1024
	payload.TotalDiskGB = round2(float64(total) / gb)
	payload.AvailableDiskGB = round2(float64(free) / gb)

	return payload
}

func round2(v float64) float64 {
	return float64(int64(v*100)) / 100
}
