package slab

import (
	"testing"

	"github.com/rancho0755/skp-go/buddy"
	"github.com/rancho0755/skp-go/config"
)

func testAllocator(t *testing.T) *buddy.Allocator {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg.NumNodes = 1
	cfg.VPageSize = 4096
	cfg.MaxOrder = 6
	cfg.BuddyBlockSize = int64(cfg.VPageSize) << uint(cfg.MaxOrder)
	return buddy.New(cfg)
}

func TestCacheAllocFree(t *testing.T) {
	var ctorCalls, dtorCalls int
	c, err := New(testAllocator(t), Config{
		ObjSize: 64,
		Ctor:    func(b []byte) { ctorCalls++ },
		Dtor:    func(b []byte) { dtorCalls++ },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	objs := make([]*Object, 0, 64)
	for i := 0; i < 64; i++ {
		o, err := c.Alloc()
		if err != nil {
			t.Fatalf("Alloc #%d: %v", i, err)
		}
		if len(o.Bytes) != 64 {
			t.Fatalf("Bytes len = %d, want 64", len(o.Bytes))
		}
		objs = append(objs, o)
	}
	if ctorCalls == 0 {
		t.Fatal("expected Ctor to run at least once")
	}

	for _, o := range objs {
		c.Free(o)
	}

	c.Destroy()
	if dtorCalls != ctorCalls {
		t.Fatalf("dtorCalls = %d, want %d (every constructed object destroyed)", dtorCalls, ctorCalls)
	}
}

func TestCacheDistinctObjects(t *testing.T) {
	c, err := New(testAllocator(t), Config{ObjSize: 32})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	seen := map[*Object]bool{}
	for i := 0; i < 100; i++ {
		o, err := c.Alloc()
		if err != nil {
			t.Fatalf("Alloc: %v", err)
		}
		if seen[o] {
			t.Fatal("Alloc returned the same live object twice")
		}
		seen[o] = true
		o.Bytes[0] = byte(i)
	}
}

func TestHeapSizeClassesAndDirect(t *testing.T) {
	h, err := NewHeap(testAllocator(t))
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}

	small, err := h.Malloc(10)
	if err != nil {
		t.Fatalf("Malloc(10): %v", err)
	}
	if len(small.Bytes) != 10 {
		t.Fatalf("len = %d, want 10", len(small.Bytes))
	}

	big, err := h.Malloc(4096 * 3)
	if err != nil {
		t.Fatalf("Malloc(large): %v", err)
	}
	if len(big.Bytes) != 4096*3 {
		t.Fatalf("len = %d, want %d", len(big.Bytes), 4096*3)
	}
	if big.directPage == nil {
		t.Fatal("expected a large allocation to take the direct page path")
	}

	h.Free(small)
	h.Free(big)
	h.Destroy()
}
