package buddy

import (
	"sync"
)

// pageBlock is one BuddyBlockSize-sized supply: a contiguous backing
// buffer plus the page descriptors that describe it. Buddy/merge
// arithmetic never crosses a pageBlock boundary — each supply already
// produces exactly one maximal-order (MaxOrder) block, so a block's own
// address space is the buddy system's complete universe for that memory.
type pageBlock struct {
	buf       []byte
	pages     []Page
	vpageSize int
	owner     *zone
}

// node is one NUMA-style allocation node: an id, a zone, and the set of
// blocks supplied to it so far. Nodes grow lazily — a node has no blocks
// until something asks it to supply memory.
type node struct {
	id   int
	zone *zone

	mu     sync.Mutex // guards blocks/pages during growth only; the zone has its own lock for steady-state alloc/free
	blocks []*pageBlock

	vpageSize      int
	maxOrder       int
	pagesPerBlock  int
	blockSizeBytes int64
}

func newNode(id int, vpageSize, maxOrder int, blockSizeBytes int64) *node {
	return &node{
		id:             id,
		zone:           newZone(maxOrder),
		vpageSize:      vpageSize,
		maxOrder:       maxOrder,
		pagesPerBlock:  1 << uint(maxOrder),
		blockSizeBytes: blockSizeBytes,
	}
}

// supply maps one more BuddyBlockSize block, builds its page descriptor
// array, and releases it as a single maximum-order free block. Per
// spec.md §4.E, the reference implementation carves descriptor storage
// out of the mapped region itself and reserves low orders for it; since
// this target's descriptors are an ordinary GC-tracked []Page slice
// (see buddy/page.go), no pages need to be reserved for them and the
// entire block becomes available immediately.
func (n *node) supply() error {
	buf, err := mapAnon(n.blockSizeBytes)
	if err != nil {
		return err
	}

	blk := &pageBlock{
		buf:       buf,
		pages:     make([]Page, n.pagesPerBlock),
		vpageSize: n.vpageSize,
		owner:     n.zone,
	}
	for i := range blk.pages {
		blk.pages[i] = Page{localPfn: int32(i), block: blk, order: -1}
	}

	n.mu.Lock()
	n.blocks = append(n.blocks, blk)
	n.mu.Unlock()

	n.zone.mu.Lock()
	n.zone.releaseFreeBlock(&blk.pages[0], n.maxOrder)
	n.zone.mu.Unlock()
	return nil
}

func (n *node) hasBlocks() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.blocks) > 0
}
