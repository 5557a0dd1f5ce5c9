package buddy

import "sync/atomic"

// Flags is the per-page status bitmask.
type Flags uint32

const (
	// FlagReserved marks a page that is never handed out by alloc_pages
	// (reserved for allocator bookkeeping). No page currently carries this
	// flag — see the comment on node.supply about descriptor storage.
	FlagReserved Flags = 1 << iota
	// FlagCompoundHead marks the first page of a multi-page allocation
	// made with GFPComp.
	FlagCompoundHead
	// FlagCompoundTail marks a non-first page of a compound allocation.
	FlagCompoundTail
	// FlagSlab marks a page handed to the slab cache as backing storage.
	FlagSlab
)

// Page is the per-page-frame descriptor: one exists for every VPageSize
// slice of memory this allocator has ever supplied, whether free,
// allocated singly, or part of a compound run.
//
// Page identity is pointer identity: a *Page is never copied or moved
// once its owning block is created, so pointers stored in freelists and
// compound-tail back-pointers stay valid for the process lifetime.
type Page struct {
	flags atomic.Uint32
	refs  atomic.Int32

	// order is the free-list order this page heads, or -1 when the page
	// is not currently a freelist head (allocated, or a non-head page of
	// a free or allocated block).
	order int32

	localPfn int32
	block    *pageBlock

	// listPrev/listNext link this page into its zone's freelist at
	// `order`, when it is a freelist head.
	listPrev, listNext *Page

	// compoundHead is set on COMPOUND-TAIL pages only, pointing back to
	// the COMPOUND-HEAD of the run.
	compoundHead *Page
	// compoundOrder records the order a head page was allocated at. It
	// is set on every allocation (so Data() can size a plain multi-page
	// run), but only carries CompoundOrder/CompoundHead semantics for
	// pages that were allocated with GFPComp.
	compoundOrder int32

	// private is scratch storage for the slab cache (head of the
	// in-page free-object list), unused by the allocator itself.
	private uintptr
}

func (p *Page) hasFlag(f Flags) bool {
	return Flags(p.flags.Load())&f != 0
}

func (p *Page) setFlags(f Flags) {
	for {
		cur := p.flags.Load()
		if !p.flags.CompareAndSwap(cur, cur|uint32(f)) {
			continue
		}
		return
	}
}

func (p *Page) clearFlags(f Flags) {
	for {
		cur := p.flags.Load()
		if !p.flags.CompareAndSwap(cur, cur&^uint32(f)) {
			continue
		}
		return
	}
}

// Data returns the byte slice backing this page — the whole 2^order run
// for a page returned by AllocPages at order > 0, whether or not it is
// tagged as a compound allocation.
func (p *Page) Data() []byte {
	size := vpageSize(p.block.vpageSize, int(p.compoundOrder))
	off := int(p.localPfn) * p.block.vpageSize
	return p.block.buf[off : off+size]
}

func vpageSize(base int, order int) int {
	return base << uint(order)
}

// Private returns the scratch field reserved for the slab cache.
func (p *Page) Private() uintptr { return p.private }

// SetPrivate sets the scratch field reserved for the slab cache.
func (p *Page) SetPrivate(v uintptr) { p.private = v }

// IncRef/DecRef let callers (e.g. the slab cache) share a page's
// lifetime without the allocator itself tracking usage.
func (p *Page) IncRef() int32 { return p.refs.Add(1) }
func (p *Page) DecRef() int32 { return p.refs.Add(-1) }

// CompoundHead returns the head page of a compound run given any page in
// it (the head returns itself).
func CompoundHead(p *Page) *Page {
	if p.hasFlag(FlagCompoundTail) {
		return p.compoundHead
	}
	return p
}

// CompoundOrder returns the order of a compound allocation given its
// head page, or 0 if p is not a compound head.
func CompoundOrder(p *Page) int {
	if p.hasFlag(FlagCompoundHead) {
		return int(p.compoundOrder)
	}
	return 0
}

// buddyOf returns this page's buddy at order k within the same block.
func (p *Page) buddyOf(k int) *Page {
	buddyPfn := p.localPfn ^ (1 << uint(k))
	return &p.block.pages[buddyPfn]
}
