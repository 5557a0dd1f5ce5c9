// Package workqueue implements component J: one or more worker pools
// draining a queue of deferred functions, per spec.md §4.J. Bound pools
// map one pool per CPU; an unbound pool is shared by a dynamically
// sized worker count. Queueing is a lock-free push onto a ring.Ring
// (component D); blocking for work or for a flush barrier is built on
// kwait (component H); each worker is a kthread.Thread (component I).
//
// Go has no way to pin a goroutine to a specific CPU, so "bound to CPU
// N" is simulated by giving CPU N its own pool/ring/worker rather than
// true affinity — the meaningful part of binding (a dedicated, strictly
// ordered execution context per CPU index) still holds; only the literal
// OS-level pinning is dropped. Documented further in pool.go.
package workqueue

import "sync/atomic"

type workFlag uint32

const (
	flagPending workFlag = 1 << iota
	flagRunning
	flagDelayed
)

// Work is a unit of deferred execution: a function plus the
// PENDING/RUNNING/DELAYED flag set of spec.md §4.J's work_struct, and a
// back-pointer to the pool it was last queued on (used by FlushWork to
// find where to insert a barrier).
type Work struct {
	fn    func()
	flags atomic.Uint32
	pool  *pool
}

// NewWork wraps fn as a Work ready to be queued.
func NewWork(fn func()) *Work {
	return &Work{fn: fn}
}

func (w *Work) setFlag(f workFlag)   { atomicOr(&w.flags, uint32(f)) }
func (w *Work) clearFlag(f workFlag) { atomicAndNot(&w.flags, uint32(f)) }
func (w *Work) hasFlag(f workFlag) bool {
	return w.flags.Load()&uint32(f) != 0
}

// trySetPending atomically sets PENDING if it was clear, reporting
// whether it changed — the test-and-set queue_work relies on to reject
// queueing a work that is already pending.
func (w *Work) trySetPending() bool {
	for {
		old := w.flags.Load()
		if old&uint32(flagPending) != 0 {
			return false
		}
		if w.flags.CompareAndSwap(old, old|uint32(flagPending)) {
			return true
		}
	}
}

func atomicOr(a *atomic.Uint32, bits uint32) {
	for {
		old := a.Load()
		if a.CompareAndSwap(old, old|bits) {
			return
		}
	}
}

func atomicAndNot(a *atomic.Uint32, bits uint32) {
	for {
		old := a.Load()
		if a.CompareAndSwap(old, old&^bits) {
			return
		}
	}
}
