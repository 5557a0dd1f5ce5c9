// Package config loads the runtime's tunable parameters: CPU count, virtual
// page size, node count, buddy block size, max order, stack size, and
// workqueue worker floor/max (spec.md §6). Defaults are applied first, then
// overridden by environment variables, then validated.
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/rancho0755/skp-go/skperr"
)

// Config is an immutable snapshot of the runtime's tunables. Build one with
// Load; the zero value is not valid (use Load, which always fills in
// defaults).
type Config struct {
	// NumCPU is the number of worker/poller shards the runtime assumes.
	// Defaults to runtime.NumCPU().
	NumCPU int

	// VPageSize is the size in bytes of one virtual page managed by the
	// buddy allocator. Must be a power of two, >= 4096. Defaults to 4096.
	VPageSize int

	// NumNodes is the number of pseudo-NUMA nodes the vpage space is
	// partitioned into. Must be a power of two. Defaults to 1.
	NumNodes int

	// BuddyBlockSize is the number of bytes mapped each time a node is
	// supplied with more memory (spec.md §4.E). Must be a multiple of
	// VPageSize. Defaults to 64 MiB.
	BuddyBlockSize int64

	// MaxOrder is the largest buddy order the allocator hands out: each
	// zone keeps MaxOrder+1 freelists (orders 0..MaxOrder), and every
	// supplied block is one order-MaxOrder run of 2^MaxOrder pages.
	// Defaults to 11.
	MaxOrder int

	// StackSize is the stack size tunable, loaded and validated with the
	// rest. No package reads it: kthread runs on goroutines whose stacks
	// the Go runtime manages, and keeps no stack pool. Defaults to 8 MiB.
	StackSize int

	// WQWorkerMin is the unbound workqueue worker floor tunable, loaded
	// and validated with the rest. No package reads it: workqueue.New
	// takes its own Config.UnboundFloor. Defaults to 1.
	WQWorkerMin int

	// WQWorkerMax is the unbound workqueue worker ceiling tunable, loaded
	// and validated with the rest. No package reads it: workqueue.New
	// takes its own Config.UnboundMax. Defaults to 4 * NumCPU.
	WQWorkerMax int

	// LogLevel is the zerolog level name ("debug", "info", "warn",
	// "error", "disabled"). Defaults to "disabled" (silent).
	LogLevel string
}

const (
	defaultVPageSize      = 4096
	defaultNumNodes       = 1
	defaultBuddyBlockSize = 64 << 20
	defaultMaxOrder       = 11
	defaultStackSize      = 8 << 20
	defaultWQWorkerMin    = 1
	defaultLogLevel       = "disabled"
)

// Load builds a Config from compiled-in defaults, overridden by environment
// variables (SKP_NUM_CPU, SKP_VPAGE_SIZE, SKP_NUMNODES, SKP_BUDDY_BLKSIZE,
// SKP_MAX_ORDER, SKP_STACK_SIZE, SKP_WQ_WORKER_MIN, SKP_WQ_WORKER_MAX,
// SKP_LOG_LEVEL), then validated. Returns skperr.ErrInvalidArgument wrapped
// with details if validation fails.
func Load() (Config, error) {
	cfg := Config{
		NumCPU:         runtime.NumCPU(),
		VPageSize:      defaultVPageSize,
		NumNodes:       defaultNumNodes,
		BuddyBlockSize: defaultBuddyBlockSize,
		MaxOrder:       defaultMaxOrder,
		StackSize:      defaultStackSize,
		WQWorkerMin:    defaultWQWorkerMin,
		LogLevel:       defaultLogLevel,
	}
	cfg.WQWorkerMax = 4 * cfg.NumCPU

	if err := overrideInt(&cfg.NumCPU, "SKP_NUM_CPU"); err != nil {
		return Config{}, err
	}
	if err := overrideInt(&cfg.VPageSize, "SKP_VPAGE_SIZE"); err != nil {
		return Config{}, err
	}
	if err := overrideInt(&cfg.NumNodes, "SKP_NUMNODES"); err != nil {
		return Config{}, err
	}
	if err := overrideInt64(&cfg.BuddyBlockSize, "SKP_BUDDY_BLKSIZE"); err != nil {
		return Config{}, err
	}
	if err := overrideInt(&cfg.MaxOrder, "SKP_MAX_ORDER"); err != nil {
		return Config{}, err
	}
	if err := overrideInt(&cfg.StackSize, "SKP_STACK_SIZE"); err != nil {
		return Config{}, err
	}
	if err := overrideInt(&cfg.WQWorkerMin, "SKP_WQ_WORKER_MIN"); err != nil {
		return Config{}, err
	}
	if err := overrideInt(&cfg.WQWorkerMax, "SKP_WQ_WORKER_MAX"); err != nil {
		return Config{}, err
	}
	if v, ok := os.LookupEnv("SKP_LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if !isPow2(c.VPageSize) || c.VPageSize < 4096 {
		return fmt.Errorf("%w: VPageSize %d must be a power of two >= 4096", skperr.ErrInvalidArgument, c.VPageSize)
	}
	if !isPow2(c.NumNodes) || c.NumNodes < 1 {
		return fmt.Errorf("%w: NumNodes %d must be a power of two >= 1", skperr.ErrInvalidArgument, c.NumNodes)
	}
	if c.BuddyBlockSize <= 0 || c.BuddyBlockSize%int64(c.VPageSize) != 0 {
		return fmt.Errorf("%w: BuddyBlockSize %d must be a positive multiple of VPageSize", skperr.ErrInvalidArgument, c.BuddyBlockSize)
	}
	if c.MaxOrder < 1 || c.MaxOrder > 30 {
		return fmt.Errorf("%w: MaxOrder %d out of range", skperr.ErrInvalidArgument, c.MaxOrder)
	}
	if c.BuddyBlockSize/int64(c.VPageSize) < int64(1)<<uint(c.MaxOrder) {
		return fmt.Errorf("%w: BuddyBlockSize too small for MaxOrder %d", skperr.ErrInvalidArgument, c.MaxOrder)
	}
	if c.WQWorkerMin < 0 || c.WQWorkerMax < c.WQWorkerMin {
		return fmt.Errorf("%w: WQWorkerMax %d must be >= WQWorkerMin %d", skperr.ErrInvalidArgument, c.WQWorkerMax, c.WQWorkerMin)
	}
	return nil
}

func isPow2(v int) bool {
	return v > 0 && v&(v-1) == 0
}

func overrideInt(dst *int, env string) error {
	v, ok := os.LookupEnv(env)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %v", skperr.ErrInvalidArgument, env, v, err)
	}
	*dst = n
	return nil
}

func overrideInt64(dst *int64, env string) error {
	v, ok := os.LookupEnv(env)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %v", skperr.ErrInvalidArgument, env, v, err)
	}
	*dst = n
	return nil
}
