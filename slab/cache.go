// Package slab implements the slab cache of spec.md §4.F: per-object-size
// caches backed by the buddy allocator, with per-CPU magazines fronting a
// shared per-cache partial-slab list, plus a general power-of-two-size-class
// heap (umalloc/ufree) built on top.
//
// The reference design fronts each cache with one magazine per CPU,
// touched without locking because only the owning CPU ever reaches it.
// Go has no equivalent of "the current CPU" for ordinary goroutines (the
// same adaptation qspinlock's node pool and buddy's node-selection hint
// already make), so this target keeps a fixed pool of magazines sized off
// runtime.NumCPU and shards across them with a rotating counter instead of
// true affinity; each magazine still needs its own lock as a result,
// since two goroutines can land on the same shard.
package slab

import (
	"fmt"
	"sync/atomic"

	"github.com/rancho0755/skp-go/buddy"
	"github.com/rancho0755/skp-go/qspinlock"
	"github.com/rancho0755/skp-go/skperr"
)

// Config configures a Cache. The zero value is not valid; use New.
type Config struct {
	// ObjSize is the size in bytes of each object.
	ObjSize int
	// MagazineSize is the capacity of each per-shard magazine. Defaults
	// to 16 if zero.
	MagazineSize int
	// MinObjsPerSlab is the minimum number of objects a single slab must
	// hold; the slab's buddy order is chosen to satisfy it. Defaults to
	// 8 if zero.
	MinObjsPerSlab int
	// EmptySlabThreshold is the number of fully-empty slabs a cache will
	// hold onto before returning them to the page allocator. Defaults to
	// 1 if zero.
	EmptySlabThreshold int
	// Ctor, if set, runs once per object when its slab is created.
	Ctor func(obj []byte)
	// Dtor, if set, runs once per object when its slab is released.
	Dtor func(obj []byte)
}

func (c *Config) setDefaults() {
	if c.MagazineSize == 0 {
		c.MagazineSize = 16
	}
	if c.MinObjsPerSlab == 0 {
		c.MinObjsPerSlab = 8
	}
	if c.EmptySlabThreshold == 0 {
		c.EmptySlabThreshold = 1
	}
}

type magazine struct {
	mu   qspinlock.Spinlock
	objs []*Object
}

func (m *magazine) pop() (*Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.objs)
	if n == 0 {
		return nil, false
	}
	o := m.objs[n-1]
	m.objs = m.objs[:n-1]
	return o, true
}

func (m *magazine) push(o *Object, cap int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.objs) >= cap {
		return false
	}
	m.objs = append(m.objs, o)
	return true
}

// slabMeta tracks one slab (one compound page carved into equal-size
// objects) and its free-object stack.
type slabMeta struct {
	page  *buddy.Page
	order int
	cache *Cache
	objs  []*Object
	free  []int
}

func (m *slabMeta) takeFree() (*Object, bool) {
	n := len(m.free)
	if n == 0 {
		return nil, false
	}
	i := m.free[n-1]
	m.free = m.free[:n-1]
	return m.objs[i], true
}

func (m *slabMeta) giveFree(o *Object) {
	m.free = append(m.free, o.index)
}

func (m *slabMeta) hasFree() bool { return len(m.free) > 0 }
func (m *slabMeta) allFree() bool { return len(m.free) == len(m.objs) }

// Cache is a fixed-object-size allocator backed by Alloc, fronted by a
// shard of per-CPU-style magazines.
type Cache struct {
	alloc   *buddy.Allocator
	cfg     Config
	objSize int
	order   int

	magazines []*magazine
	shardHint atomic.Uint32

	mu       qspinlock.Spinlock
	partial  []*slabMeta
	allSlabs map[*buddy.Page]*slabMeta
	empty    []*slabMeta
}

// New builds a Cache for fixed-size objects backed by alloc.
func New(alloc *buddy.Allocator, cfg Config) (*Cache, error) {
	if cfg.ObjSize <= 0 {
		return nil, fmt.Errorf("%w: ObjSize must be positive", skperr.ErrInvalidArgument)
	}
	cfg.setDefaults()

	order := 0
	for (alloc.VPageSize()<<uint(order))/cfg.ObjSize < cfg.MinObjsPerSlab {
		order++
		if order > alloc.MaxOrder() {
			return nil, fmt.Errorf("%w: ObjSize %d too large for MinObjsPerSlab %d within MaxOrder", skperr.ErrInvalidArgument, cfg.ObjSize, cfg.MinObjsPerSlab)
		}
	}

	numShards := numCPUShards()
	mags := make([]*magazine, numShards)
	for i := range mags {
		mags[i] = &magazine{}
	}

	return &Cache{
		alloc:     alloc,
		cfg:       cfg,
		objSize:   cfg.ObjSize,
		order:     order,
		magazines: mags,
		allSlabs:  make(map[*buddy.Page]*slabMeta),
	}, nil
}

func (c *Cache) shard() *magazine {
	idx := int(c.shardHint.Add(1)) % len(c.magazines)
	return c.magazines[idx]
}

// Alloc returns one zeroed-at-construction object.
func (c *Cache) Alloc() (*Object, error) {
	mag := c.shard()
	if o, ok := mag.pop(); ok {
		return o, nil
	}
	if err := c.refill(mag); err != nil {
		return nil, err
	}
	if o, ok := mag.pop(); ok {
		return o, nil
	}
	return nil, skperr.ErrOutOfMemory
}

// Free returns obj to the cache. obj must have come from this Cache's
// Alloc.
func (c *Cache) Free(obj *Object) {
	mag := c.shard()
	if mag.push(obj, c.cfg.MagazineSize) {
		return
	}
	c.flush(mag, obj)
}

func (c *Cache) refill(mag *magazine) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	need := c.cfg.MagazineSize
	for need > 0 {
		var meta *slabMeta
		if n := len(c.partial); n > 0 {
			meta = c.partial[n-1]
			c.partial = c.partial[:n-1]
		} else if n := len(c.empty); n > 0 {
			meta = c.empty[n-1]
			c.empty = c.empty[:n-1]
		} else {
			var err error
			meta, err = c.growSlab()
			if err != nil {
				return err
			}
		}

		for need > 0 {
			o, ok := meta.takeFree()
			if !ok {
				break
			}
			if !mag.push(o, c.cfg.MagazineSize) {
				meta.giveFree(o)
				break
			}
			need--
		}
		if meta.hasFree() {
			c.partial = append(c.partial, meta)
		}
	}
	return nil
}

func (c *Cache) growSlab() (*slabMeta, error) {
	page, err := c.alloc.AllocPages(buddy.GFPComp, c.order)
	if err != nil {
		return nil, err
	}
	data := page.Data()
	n := len(data) / c.objSize
	meta := &slabMeta{page: page, order: c.order, cache: c, objs: make([]*Object, n), free: make([]int, n)}
	for i := 0; i < n; i++ {
		b := data[i*c.objSize : (i+1)*c.objSize]
		if c.cfg.Ctor != nil {
			c.cfg.Ctor(b)
		}
		meta.objs[i] = &Object{Bytes: b, meta: meta, index: i}
		meta.free[i] = i
	}
	c.allSlabs[page] = meta
	return meta, nil
}

func (c *Cache) flush(mag *magazine, extra *Object) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mag.mu.Lock()
	toFlush := append(mag.objs[:len(mag.objs):len(mag.objs)], extra)
	half := (len(toFlush) + 1) / 2
	mag.objs = toFlush[half:]
	toFlush = toFlush[:half]
	mag.mu.Unlock()

	touched := make(map[*slabMeta]bool)
	for _, o := range toFlush {
		o.meta.giveFree(o)
		touched[o.meta] = true
	}

	for meta := range touched {
		if meta.allFree() {
			c.empty = append(c.empty, meta)
		} else {
			c.partial = append(c.partial, meta)
		}
	}

	for len(c.empty) > c.cfg.EmptySlabThreshold {
		meta := c.empty[0]
		c.empty = c.empty[1:]
		c.releaseSlab(meta)
	}
}

func (c *Cache) releaseSlab(meta *slabMeta) {
	if c.cfg.Dtor != nil {
		for _, o := range meta.objs {
			c.cfg.Dtor(o.Bytes)
		}
	}
	delete(c.allSlabs, meta.page)
	c.alloc.FreePages(meta.page, meta.order)
}

// Destroy releases every slab this cache holds back to the page
// allocator, running Dtor on every object first.
func (c *Cache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, meta := range c.allSlabs {
		if c.cfg.Dtor != nil {
			for _, o := range meta.objs {
				c.cfg.Dtor(o.Bytes)
			}
		}
		c.alloc.FreePages(meta.page, meta.order)
	}
	c.allSlabs = make(map[*buddy.Page]*slabMeta)
	c.partial = nil
	c.empty = nil
}
