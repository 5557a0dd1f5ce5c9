package slab

import (
	"fmt"

	"github.com/rancho0755/skp-go/buddy"
	"github.com/rancho0755/skp-go/skperr"
)

// Heap is the general-purpose umalloc/ufree layer of spec.md §4.F: a
// ladder of power-of-two size-class Caches for small requests, falling
// through to a direct compound-page allocation for anything above the
// largest class. The size (and, for direct allocations, the order) is
// carried on the returned Object, so Free needs nothing but the Object
// itself — matching the reference's "size is recorded in the head page's
// flags/order so free needs only a pointer" property.
type Heap struct {
	alloc     *buddy.Allocator
	classes   []*Cache
	sizes     []int
	threshold int
}

const minSizeClass = 16

// NewHeap builds a Heap over alloc, with size classes from 16 bytes up to
// half a page, and direct page allocation above that.
func NewHeap(alloc *buddy.Allocator) (*Heap, error) {
	h := &Heap{alloc: alloc, threshold: alloc.VPageSize() / 2}
	for sz := minSizeClass; sz <= h.threshold; sz <<= 1 {
		c, err := New(alloc, Config{ObjSize: sz})
		if err != nil {
			return nil, fmt.Errorf("size class %d: %w", sz, err)
		}
		h.classes = append(h.classes, c)
		h.sizes = append(h.sizes, sz)
	}
	return h, nil
}

// Malloc returns size bytes, rounded up to the smallest covering size
// class (or allocated directly from the page allocator above the
// largest class).
func (h *Heap) Malloc(size int) (*Object, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive", skperr.ErrInvalidArgument)
	}
	if size > h.threshold {
		order := orderFor(h.alloc.VPageSize(), size)
		if order > h.alloc.MaxOrder() {
			return nil, fmt.Errorf("%w: size %d exceeds the heap's maximum direct allocation", skperr.ErrInvalidArgument, size)
		}
		page, err := h.alloc.AllocPages(buddy.GFPComp, order)
		if err != nil {
			return nil, err
		}
		return &Object{Bytes: page.Data()[:size], directPage: page, directOrder: order}, nil
	}

	for i, sz := range h.sizes {
		if size <= sz {
			o, err := h.classes[i].Alloc()
			if err != nil {
				return nil, err
			}
			o.Bytes = o.Bytes[:size]
			return o, nil
		}
	}
	// unreachable: sizes ladder always covers up to h.threshold
	return nil, fmt.Errorf("%w: no size class fits %d bytes", skperr.ErrInvalidArgument, size)
}

// Free releases an Object obtained from Malloc.
func (h *Heap) Free(o *Object) {
	if o.directPage != nil {
		h.alloc.FreePages(o.directPage, o.directOrder)
		return
	}
	o.meta.cache.Free(o)
}

// Destroy releases every slab held by every size class.
func (h *Heap) Destroy() {
	for _, c := range h.classes {
		c.Destroy()
	}
}

func orderFor(vpageSize, size int) int {
	order := 0
	for vpageSize<<uint(order) < size {
		order++
	}
	return order
}
