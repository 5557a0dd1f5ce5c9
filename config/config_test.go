package config

import (
	"errors"
	"os"
	"testing"

	"github.com/rancho0755/skp-go/skperr"
)

// clearEnv unsets every SKP_* variable Load reads, restoring each on test
// cleanup. t.Setenv cannot unset a variable (only set it), and
// os.LookupEnv("") still reports ok=true, so the defaults test below
// needs a real Unsetenv rather than Setenv(env, "").
func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{
		"SKP_NUM_CPU", "SKP_VPAGE_SIZE", "SKP_NUMNODES", "SKP_BUDDY_BLKSIZE",
		"SKP_MAX_ORDER", "SKP_STACK_SIZE", "SKP_WQ_WORKER_MIN", "SKP_WQ_WORKER_MAX",
		"SKP_LOG_LEVEL",
	} {
		prev, had := os.LookupEnv(env)
		_ = os.Unsetenv(env)
		if had {
			t.Cleanup(func() { _ = os.Setenv(env, prev) })
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.VPageSize != defaultVPageSize {
		t.Errorf("VPageSize = %d, want %d", cfg.VPageSize, defaultVPageSize)
	}
	if cfg.NumNodes != defaultNumNodes {
		t.Errorf("NumNodes = %d, want %d", cfg.NumNodes, defaultNumNodes)
	}
	if cfg.BuddyBlockSize != defaultBuddyBlockSize {
		t.Errorf("BuddyBlockSize = %d, want %d", cfg.BuddyBlockSize, defaultBuddyBlockSize)
	}
	if cfg.MaxOrder != defaultMaxOrder {
		t.Errorf("MaxOrder = %d, want %d", cfg.MaxOrder, defaultMaxOrder)
	}
	if cfg.StackSize != defaultStackSize {
		t.Errorf("StackSize = %d, want %d", cfg.StackSize, defaultStackSize)
	}
	if cfg.WQWorkerMin != defaultWQWorkerMin {
		t.Errorf("WQWorkerMin = %d, want %d", cfg.WQWorkerMin, defaultWQWorkerMin)
	}
	if cfg.WQWorkerMax != 4*cfg.NumCPU {
		t.Errorf("WQWorkerMax = %d, want %d", cfg.WQWorkerMax, 4*cfg.NumCPU)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SKP_NUM_CPU", "8")
	t.Setenv("SKP_VPAGE_SIZE", "8192")
	t.Setenv("SKP_NUMNODES", "2")
	t.Setenv("SKP_BUDDY_BLKSIZE", "16777216")
	t.Setenv("SKP_MAX_ORDER", "10")
	t.Setenv("SKP_STACK_SIZE", "4194304")
	t.Setenv("SKP_WQ_WORKER_MIN", "2")
	t.Setenv("SKP_WQ_WORKER_MAX", "16")
	t.Setenv("SKP_LOG_LEVEL", "info")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Config{
		NumCPU:         8,
		VPageSize:      8192,
		NumNodes:       2,
		BuddyBlockSize: 16777216,
		MaxOrder:       10,
		StackSize:      4194304,
		WQWorkerMin:    2,
		WQWorkerMax:    16,
		LogLevel:       "info",
	}
	if cfg != want {
		t.Errorf("Load() = %+v, want %+v", cfg, want)
	}
}

func TestLoadRejectsNonPowerOfTwoVPageSize(t *testing.T) {
	clearEnv(t)
	t.Setenv("SKP_VPAGE_SIZE", "5000")

	_, err := Load()
	if !errors.Is(err, skperr.ErrInvalidArgument) {
		t.Fatalf("Load() err = %v, want ErrInvalidArgument", err)
	}
}

func TestLoadRejectsMalformedInt(t *testing.T) {
	clearEnv(t)
	t.Setenv("SKP_NUM_CPU", "not-a-number")

	_, err := Load()
	if !errors.Is(err, skperr.ErrInvalidArgument) {
		t.Fatalf("Load() err = %v, want ErrInvalidArgument", err)
	}
}

func TestLoadRejectsInconsistentWorkerBounds(t *testing.T) {
	clearEnv(t)
	t.Setenv("SKP_WQ_WORKER_MIN", "8")
	t.Setenv("SKP_WQ_WORKER_MAX", "2")

	_, err := Load()
	if !errors.Is(err, skperr.ErrInvalidArgument) {
		t.Fatalf("Load() err = %v, want ErrInvalidArgument", err)
	}
}

func TestLoadRejectsBuddyBlockSizeNotMultipleOfVPageSize(t *testing.T) {
	clearEnv(t)
	t.Setenv("SKP_VPAGE_SIZE", "4096")
	t.Setenv("SKP_BUDDY_BLKSIZE", "5000")

	_, err := Load()
	if !errors.Is(err, skperr.ErrInvalidArgument) {
		t.Fatalf("Load() err = %v, want ErrInvalidArgument", err)
	}
}
