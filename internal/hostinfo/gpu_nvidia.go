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

package hostinfo

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// nvidiaSMIGPUs shells out to nvidia-smi's CSV query mode, the same
// vendor-specific enumeration strategy attempted before falling back
// to OS-level display enumeration.
func nvidiaSMIGPUs(ctx context.Context) ([]GPU, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, "nvidia-smi",
		"--query-gpu=name,memory.total,memory.used,memory.free,utilization.gpu",
		"--format=csv,noheader,nounits",
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, err
	}

	var gpus []GPU
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 5 {
			continue
		}
		total, _ := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
		used, _ := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
		free, _ := strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64)
		util, _ := strconv.Atoi(strings.TrimSpace(fields[4]))

		gpus = append(gpus, GPU{
			Name:        strings.TrimSpace(fields[0]),
			TotalVRAMMB: total,
			UsedVRAMMB:  used,
			FreeVRAMMB:  free,
			UtilPercent: util,
			Vendor:      "nvidia",
		})
	}
	return gpus, nil
}
