// Package qspinlock implements the queued (MCS-style) spinlock of
// spec.md §4.C: a fast uncontended path, a one-bit "pending" path that
// avoids queuing under light contention, and a linked-list queue path for
// everything beyond that.
//
// The reference design ties queue nodes to CPU index via a per-CPU array;
// this target has no CPU-pinned storage available to ordinary code, so
// queue nodes are drawn instead from a fixed pool of runtime.NumCPU()*4
// nodes (see DESIGN.md) — the qualitative behavior (FIFO handoff, bounded
// spinning, no allocation on the lock path) is unchanged.
package qspinlock

import (
	"runtime"
	"sync/atomic"
)

const (
	lockedBit  uint32 = 1 << 0
	pendingBit uint32 = 1 << 1
	tailShift         = 2
)

// node is one slot in the MCS wait queue.
type node struct {
	next   atomic.Uint32 // 1+index of the next queued node, 0 = none
	locked atomic.Bool   // set by the predecessor when handing off the lock
}

// pool is a fixed, lock-free free-list of queue nodes (a Treiber stack of
// 1-based indices into slots; 0 is the "empty" sentinel).
type pool struct {
	slots []node
	free  atomic.Uint32 // 1-based index of the head of the free list, or 0
	links []atomic.Uint32
}

func newPool(n int) *pool {
	if n < 4 {
		n = 4
	}
	p := &pool{slots: make([]node, n), links: make([]atomic.Uint32, n+1)}
	for i := n; i >= 1; i-- {
		p.links[i].Store(p.free.Load())
		p.free.Store(uint32(i))
	}
	return p
}

func (p *pool) get() uint32 {
	for {
		head := p.free.Load()
		if head == 0 {
			runtime.Gosched()
			continue
		}
		next := p.links[head].Load()
		if p.free.CompareAndSwap(head, next) {
			p.slots[head-1] = node{}
			return head
		}
	}
}

func (p *pool) put(idx uint32) {
	for {
		head := p.free.Load()
		p.links[idx].Store(head)
		if p.free.CompareAndSwap(head, idx) {
			return
		}
	}
}

var defaultPool = newPool(runtime.NumCPU() * 4)

// Spinlock is a non-reentrant, non-blocking (busy-wait) mutual-exclusion
// lock. The zero value is an unlocked Spinlock.
type Spinlock struct {
	state atomic.Uint32
}

// TryLock attempts the uncontended fast path only, returning false
// immediately rather than spinning or queuing.
func (l *Spinlock) TryLock() bool {
	return l.state.CompareAndSwap(0, lockedBit)
}

// Lock acquires the spinlock, busy-waiting through the pending bit and
// then the MCS queue as contention increases.
func (l *Spinlock) Lock() {
	if l.state.CompareAndSwap(0, lockedBit) {
		return
	}
	l.lockSlow()
}

func (l *Spinlock) lockSlow() {
	for {
		s := l.state.Load()

		if s == 0 {
			if l.state.CompareAndSwap(0, lockedBit) {
				return
			}
			continue
		}

		if s&lockedBit != 0 && s&pendingBit == 0 && s>>tailShift == 0 {
			// Uncontended-but-locked: become the single pending waiter,
			// spin on the locked bit alone (no queue needed).
			if l.state.CompareAndSwap(s, s|pendingBit) {
				for l.state.Load()&lockedBit != 0 {
					runtime.Gosched()
				}
				// Claim the lock and clear pending in one step.
				for {
					cur := l.state.Load()
					if l.state.CompareAndSwap(cur, (cur&^pendingBit)|lockedBit) {
						return
					}
				}
			}
			continue
		}

		// Tail path: both pending and locked are taken (or a queue already
		// exists). Enqueue via an MCS node.
		l.queueLock(s)
		return
	}
}

func (l *Spinlock) queueLock(observed uint32) {
	idx := defaultPool.get()
	n := &defaultPool.slots[idx-1]
	n.next.Store(0)
	n.locked.Store(true)

	for {
		oldTail := observed >> tailShift
		newState := (idx << tailShift) | (observed & (lockedBit | pendingBit))
		if l.state.CompareAndSwap(observed, newState) {
			if oldTail != 0 {
				defaultPool.slots[oldTail-1].next.Store(idx)
				for n.locked.Load() {
					runtime.Gosched()
				}
			}
			break
		}
		observed = l.state.Load()
	}

	// We are now the head of the queue. Wait for lock+pending to clear,
	// then claim the lock (keeping whatever tail bits are currently set).
	for {
		s := l.state.Load()
		if s&(lockedBit|pendingBit) == 0 {
			if l.state.CompareAndSwap(s, s|lockedBit) {
				break
			}
			continue
		}
		runtime.Gosched()
	}

	// Hand off to the next queued node, if any, or clear the tail if we
	// were also the tail.
	for {
		s := l.state.Load()
		if s>>tailShift == idx {
			if l.state.CompareAndSwap(s, s&(lockedBit|pendingBit)) {
				defaultPool.put(idx)
				return
			}
			continue
		}
		break
	}
	for n.next.Load() == 0 {
		runtime.Gosched()
	}
	next := n.next.Load()
	defaultPool.slots[next-1].locked.Store(false)
	defaultPool.put(idx)
}

// Unlock releases the spinlock. Unlocking a lock not held by the caller is
// a programming error and is not detected (spec.md §7: invariant
// violations abort, but a plain release store cannot distinguish "unlocked
// by me" from "unlocked by a bug" without owner tracking, which the
// reference implementation does not carry for this primitive either).
func (l *Spinlock) Unlock() {
	// Release store of 0 to the locked bit only when uncontended; the CAS
	// retry path handles pending/queued transitions that raced with us.
	for {
		s := l.state.Load()
		if s&^lockedBit == 0 {
			if l.state.CompareAndSwap(s, 0) {
				return
			}
			continue
		}
		if l.state.CompareAndSwap(s, s&^lockedBit) {
			return
		}
	}
}
