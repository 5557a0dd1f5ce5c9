package slab

import "github.com/rancho0755/skp-go/buddy"

// Object is one allocated object: its backing bytes plus enough to free
// it again. Per spec.md §4.F, object metadata is normally recovered by
// reverse-looking-up the containing slab's compound head page descriptor;
// here the lookup is unnecessary because the Object returned by Alloc
// already carries a direct reference to its owning slab (or, for a
// direct-page heap allocation, to the page itself) — Go's GC-tracked
// values make the pointer chase the reference implementation needs for
// free-standing C pointers redundant.
type Object struct {
	Bytes []byte

	meta  *slabMeta
	index int

	directPage  *buddy.Page
	directOrder int
}
