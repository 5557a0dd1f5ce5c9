package buddy

import (
	"github.com/rancho0755/skp-go/qspinlock"
)

// freeArea is the freelist for one order: a doubly-linked list of
// freelist-head pages, threaded through Page.listPrev/listNext.
type freeArea struct {
	head  *Page
	count int
}

func (fa *freeArea) push(p *Page) {
	p.listPrev = nil
	p.listNext = fa.head
	if fa.head != nil {
		fa.head.listPrev = p
	}
	fa.head = p
	fa.count++
}

func (fa *freeArea) remove(p *Page) {
	if p.listPrev != nil {
		p.listPrev.listNext = p.listNext
	} else {
		fa.head = p.listNext
	}
	if p.listNext != nil {
		p.listNext.listPrev = p.listPrev
	}
	p.listPrev, p.listNext = nil, nil
	fa.count--
}

func (fa *freeArea) pop() *Page {
	p := fa.head
	if p != nil {
		fa.remove(p)
	}
	return p
}

// zone is the (single, per spec.md §4.E) allocation zone of a node: a set
// of per-order freelists protected by one spinlock.
type zone struct {
	mu        qspinlock.Spinlock
	areas     []freeArea // index 0..maxOrder
	freePages int64
}

func newZone(maxOrder int) *zone {
	return &zone{areas: make([]freeArea, maxOrder+1)}
}

// releaseFreeBlock adds a single maximal block (already order-k, already
// marked as a freelist head) to the zone, without attempting to merge —
// used when first supplying a block, which is by construction already
// coalesced to the top order.
func (z *zone) releaseFreeBlock(p *Page, order int) {
	p.order = int32(order)
	z.areas[order].push(p)
	z.freePages += int64(1) << uint(order)
}

// alloc takes the first available block at order >= want, splitting
// down to exactly `want`. Returns nil if no freelist at or above `want`
// has anything.
func (z *zone) alloc(want int) *Page {
	for k := want; k < len(z.areas); k++ {
		p := z.areas[k].pop()
		if p == nil {
			continue
		}
		for k > want {
			k--
			buddy := p.buddyOf(k)
			buddy.order = int32(k)
			z.areas[k].push(buddy)
		}
		p.order = -1
		z.freePages -= int64(1) << uint(want)
		return p
	}
	return nil
}

// free returns a block of `order` pages headed by p to the zone,
// coalescing with its buddy at each level while the buddy is itself a
// free block of the same order.
func (z *zone) free(p *Page, order int) {
	z.freePages += int64(1) << uint(order)

	for k := order; k < len(z.areas)-1; k++ {
		buddy := p.buddyOf(k)
		if buddy.order != int32(k) {
			break
		}
		z.areas[k].remove(buddy)
		buddy.order = -1
		if buddy.localPfn < p.localPfn {
			p = buddy
		}
		order = k + 1
	}
	p.order = int32(order)
	z.areas[order].push(p)
}
