package cache

import "github.com/shirou/gopsutil/v4/mem"

// fallbackMaxBytes is used when system memory cannot be read.
const fallbackMaxBytes = 512 << 20

// DefaultMaxBytes returns half of the total system memory.
func DefaultMaxBytes() int64 {
	vm, err := mem.VirtualMemory()
	if err != nil || vm.Total == 0 {
		return fallbackMaxBytes
	}
	return int64(vm.Total / 2) //nolint:gosec // half of physical memory fits in int64
}
