package buddy

import (
	"testing"

	"github.com/rancho0755/skp-go/config"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg.NumNodes = 1
	cfg.VPageSize = 4096
	cfg.MaxOrder = 6
	cfg.BuddyBlockSize = int64(cfg.VPageSize) << uint(cfg.MaxOrder)
	return cfg
}

func TestAllocFreeSingleOrder(t *testing.T) {
	a := New(testConfig(t))

	p, err := a.AllocPages(0, 0)
	if err != nil {
		t.Fatalf("AllocPages: %v", err)
	}
	if len(p.Data()) != 4096 {
		t.Fatalf("Data() len = %d, want 4096", len(p.Data()))
	}

	nd := a.nodes[0]
	if got := nd.zone.freePages; got != (1<<6)-1 {
		t.Fatalf("freePages = %d, want %d", got, (1<<6)-1)
	}

	a.FreePages(p, 0)
	if got := nd.zone.freePages; got != 1<<6 {
		t.Fatalf("freePages after free = %d, want %d", got, 1<<6)
	}
}

func TestAllocSplitsAndCoalesces(t *testing.T) {
	a := New(testConfig(t))
	nd := a.nodes[0]

	p, err := a.AllocPages(0, 2) // 4 pages
	if err != nil {
		t.Fatalf("AllocPages: %v", err)
	}
	if nd.zone.freePages != (1<<6)-4 {
		t.Fatalf("freePages = %d, want %d", nd.zone.freePages, (1<<6)-4)
	}

	a.FreePages(p, 2)
	if nd.zone.freePages != 1<<6 {
		t.Fatalf("freePages after free = %d, want %d", nd.zone.freePages, 1<<6)
	}
	// Coalescing must have rebuilt the single maximal-order block.
	if nd.zone.areas[6].count != 1 {
		t.Fatalf("areas[maxOrder].count = %d, want 1 (fully coalesced)", nd.zone.areas[6].count)
	}
	for k := 0; k < 6; k++ {
		if nd.zone.areas[k].count != 0 {
			t.Fatalf("areas[%d].count = %d, want 0", k, nd.zone.areas[k].count)
		}
	}
}

func TestCompoundAllocation(t *testing.T) {
	a := New(testConfig(t))

	p, err := a.AllocPages(GFPComp, 2)
	if err != nil {
		t.Fatalf("AllocPages: %v", err)
	}
	if !p.hasFlag(FlagCompoundHead) {
		t.Fatal("expected head page to carry FlagCompoundHead")
	}
	if CompoundOrder(p) != 2 {
		t.Fatalf("CompoundOrder = %d, want 2", CompoundOrder(p))
	}
	if len(p.Data()) != 4096*4 {
		t.Fatalf("Data() len = %d, want %d", len(p.Data()), 4096*4)
	}

	tail := &p.block.pages[p.localPfn+1]
	if !tail.hasFlag(FlagCompoundTail) {
		t.Fatal("expected tail page to carry FlagCompoundTail")
	}
	if CompoundHead(tail) != p {
		t.Fatal("CompoundHead(tail) did not return the allocation head")
	}

	a.FreePages(p, 0) // order argument is ignored for compound heads
	if tail.hasFlag(FlagCompoundTail) {
		t.Fatal("expected tail flag cleared after free")
	}
}

func TestAllocExhaustsAndSupplies(t *testing.T) {
	cfg := testConfig(t)
	a := New(cfg)

	// Drain the node's single max-order block with max-order allocations,
	// forcing the next allocation to trigger node_supply_memory.
	first, err := a.AllocPages(0, cfg.MaxOrder)
	if err != nil {
		t.Fatalf("first AllocPages: %v", err)
	}

	second, err := a.AllocPages(0, cfg.MaxOrder)
	if err != nil {
		t.Fatalf("second AllocPages (expected to trigger supply): %v", err)
	}
	if len(a.nodes[0].blocks) != 2 {
		t.Fatalf("expected node to have supplied a second block, got %d blocks", len(a.nodes[0].blocks))
	}

	a.FreePages(first, cfg.MaxOrder)
	a.FreePages(second, cfg.MaxOrder)
}

func TestAllocRejectsOutOfRangeOrder(t *testing.T) {
	cfg := testConfig(t)
	a := New(cfg)
	if _, err := a.AllocPages(0, cfg.MaxOrder+1); err == nil {
		t.Fatal("expected error for order beyond MaxOrder")
	}
}
