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

//go:build linux

package hostinfo

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"syscall"
)

func collectMounts() []Mount {
	roots := candidateMountPoints()
	mounts := make([]Mount, 0, len(roots))

	for _, path := range roots {
		var stat syscall.Statfs_t
		if err := syscall.Statfs(path, &stat); err != nil {
			continue
		}
		mounts = append(mounts, Mount{
			Path:       path,
			TotalBytes: int64(stat.Blocks) * int64(stat.Bsize),
			FreeBytes:  int64(stat.Bavail) * int64(stat.Bsize),
		})
	}

	if len(mounts) == 0 {
		mounts = append(mounts, Mount{Path: "/"})
	}
	return mounts
}

// candidateMountPoints returns "/" plus any additional mount points parsed
// from /proc/mounts, restricted to real filesystems (skipping virtual ones
// like proc/sysfs/tmpfs-in-container) so we don't double-count.
func candidateMountPoints() []string {
	points := []string{"/"}

	f, err := os.Open("/proc/mounts")
	if err != nil {
		return points
	}
	defer f.Close()

	seen := map[string]bool{"/": true}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		mountPoint, fsType := fields[1], fields[2]
		if seen[mountPoint] || isVirtualFS(fsType) {
			continue
		}
		seen[mountPoint] = true
		points = append(points, mountPoint)
	}
	return points
}

func isVirtualFS(fsType string) bool {
	switch fsType {
	case "proc", "sysfs", "cgroup", "cgroup2", "devpts", "tmpfs", "overlay", "squashfs", "debugfs", "tracefs", "mqueue", "devtmpfs":
		return true
	}
	return false
}

func totalRAMGB() (float64, error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return float64(kb) / (1024 * 1024), nil
	}
	return 0, nil
}
