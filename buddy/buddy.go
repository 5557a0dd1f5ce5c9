// Package buddy implements the NUMA-style buddy page allocator of
// spec.md §4.E: a set of pseudo-NUMA nodes, each owning one zone of
// power-of-two-order freelists, split-on-allocate and coalesce-on-free,
// with optional compound (multi-page, single-descriptor-run) allocations.
//
// Node selection is round-robin over config.NumNodes starting from a
// rotating hint, same as the reference allocator's "round-robin starting
// from a hint" zone scan — but since this target has no notion of a
// process-wide physical frame number, the reference's eager pfn→node
// map is unnecessary: a *Page already carries the block (and therefore
// the node) it belongs to, so there is nothing to look up.
package buddy

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rancho0755/skp-go/config"
	"github.com/rancho0755/skp-go/skperr"
	"github.com/rs/zerolog"
)

// GFP are allocation flags for AllocPages, named after the reference
// implementation's __GFP_* constants.
type GFP uint32

const (
	// GFPComp requests a compound allocation: order pages returned as
	// one contiguous run under a single head descriptor.
	GFPComp GFP = 1 << iota
)

// Allocator is a NUMA-style buddy allocator over config.NumNodes nodes.
type Allocator struct {
	cfg   config.Config
	nodes []*node
	hint  atomic.Uint32

	// supplyMu is the "global big lock" spec.md §4.E takes while
	// invoking node_supply_memory — contention here is expected to be
	// rare (it's only hit when every existing node's zone is empty).
	supplyMu sync.Mutex

	log zerolog.Logger
}

// New builds an Allocator for cfg. Nodes are not populated with memory
// until first touched by AllocPages.
func New(cfg config.Config) *Allocator {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.Disabled
	}
	a := &Allocator{
		cfg: cfg,
		log: zerolog.New(os.Stderr).Level(level).With().Str("component", "buddy").Timestamp().Logger(),
	}
	a.nodes = make([]*node, cfg.NumNodes)
	for i := range a.nodes {
		a.nodes[i] = newNode(i, cfg.VPageSize, cfg.MaxOrder, cfg.BuddyBlockSize)
	}
	return a
}

// AllocPages allocates 2^order contiguous VPageSize pages, returning the
// head Page. With GFPComp set, the run is tagged as a compound
// allocation; without it, the run is a plain allocation of any order
// whose tail pages carry no compound flags or back-pointers.
func (a *Allocator) AllocPages(flags GFP, order int) (*Page, error) {
	if order < 0 || order > a.cfg.MaxOrder {
		return nil, fmt.Errorf("%w: order %d out of range [0,%d]", skperr.ErrInvalidArgument, order, a.cfg.MaxOrder)
	}

	n := len(a.nodes)
	start := int(a.hint.Add(1)) % n

	for i := 0; i < n; i++ {
		nd := a.nodes[(start+i)%n]
		if p := a.tryAllocFrom(nd, order); p != nil {
			a.finishAlloc(p, flags, order)
			return p, nil
		}
	}

	// No node satisfied the request from its existing freelists; supply
	// one more block to the hinted node and retry once.
	nd := a.nodes[start]
	if err := a.supply(nd, order); err != nil {
		a.log.Warn().Err(err).Int("node", nd.id).Msg("node supply failed")
		return nil, fmt.Errorf("%w: %v", skperr.ErrOutOfMemory, err)
	}
	if p := a.tryAllocFrom(nd, order); p != nil {
		a.finishAlloc(p, flags, order)
		return p, nil
	}
	return nil, skperr.ErrOutOfMemory
}

// VPageSize returns the configured page size in bytes.
func (a *Allocator) VPageSize() int { return a.cfg.VPageSize }

// MaxOrder returns the largest order AllocPages will accept.
func (a *Allocator) MaxOrder() int { return a.cfg.MaxOrder }

func (a *Allocator) tryAllocFrom(nd *node, order int) *Page {
	nd.zone.mu.Lock()
	defer nd.zone.mu.Unlock()
	return nd.zone.alloc(order)
}

func (a *Allocator) finishAlloc(p *Page, flags GFP, order int) {
	p.flags.Store(0)
	p.refs.Store(1)
	// allocOrder (reusing the compoundOrder field) is recorded for every
	// allocation, not just GFPComp ones, so Data() can size a plain
	// multi-page run correctly even though only GFPComp runs carry the
	// COMPOUND-HEAD/TAIL flags and back-pointers.
	p.compoundOrder = int32(order)
	if flags&GFPComp != 0 {
		p.setFlags(FlagCompoundHead)
		for i := 1; i < 1<<uint(order); i++ {
			tail := &p.block.pages[p.localPfn+int32(i)]
			tail.setFlags(FlagCompoundTail)
			tail.compoundHead = p
		}
	}
}

// supply grows nd by one block, large enough to satisfy order (the
// reference implementation always supplies one BuddyBlockSize block at
// the node's max order; this target does the same, which is always
// >= any valid order since AllocPages rejects order > MaxOrder above).
func (a *Allocator) supply(nd *node, order int) error {
	a.supplyMu.Lock()
	defer a.supplyMu.Unlock()
	return nd.supply()
}

// FreePages returns a previously allocated run to its zone. p must be
// the head page returned by AllocPages (or by CompoundHead for a
// compound run); order must match the order AllocPages was called with.
// Freeing the same page twice, or passing a non-head page, is a
// programming error and is not detected, matching the reference
// implementation (see skperr package doc and qspinlock.Unlock for the
// same caveat elsewhere in this module).
func (a *Allocator) FreePages(p *Page, order int) {
	if p.hasFlag(FlagCompoundHead) {
		order = int(p.compoundOrder)
		for i := 1; i < 1<<uint(order); i++ {
			tail := &p.block.pages[p.localPfn+int32(i)]
			tail.clearFlags(FlagCompoundTail)
			tail.compoundHead = nil
		}
		p.clearFlags(FlagCompoundHead)
	}

	p.block.releaseFree(p, order)
}

// releaseFree locates the zone that owns p's block and frees p back into
// it; every block belongs to exactly one node's zone for its lifetime.
func (blk *pageBlock) releaseFree(p *Page, order int) {
	blk.owner.mu.Lock()
	defer blk.owner.mu.Unlock()
	blk.owner.free(p, order)
}
