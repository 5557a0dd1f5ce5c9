package slab

import "runtime"

// numCPUShards sizes the magazine shard pool, same rationale as
// qspinlock's node pool: approximate per-CPU storage with a fixed pool
// of one magazine per logical CPU reported by runtime.NumCPU.
func numCPUShards() int {
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	return n
}
