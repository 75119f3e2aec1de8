package network

import (
	"os"
	"strconv"
	"strings"
)

// cgroupMemoryLimit returns the container memory limit in bytes, trying
// cgroup v2 (/sys/fs/cgroup/memory.max) first and falling back to cgroup v1
// (/sys/fs/cgroup/memory/memory.limit_in_bytes). Returns 0 with a nil error
// when no limit is detected (bare metal, VMs, unconstrained containers).
func cgroupMemoryLimit() (int64, error) {
	if data, err := os.ReadFile("/sys/fs/cgroup/memory.max"); err == nil {
		limitStr := strings.TrimSpace(string(data))
		if limitStr != "max" {
			return strconv.ParseInt(limitStr, 10, 64)
		}
		return 0, nil
	}

	if data, err := os.ReadFile("/sys/fs/cgroup/memory/memory.limit_in_bytes"); err == nil {
		return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	}

	return 0, nil
}
