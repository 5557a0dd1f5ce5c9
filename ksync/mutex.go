// Package ksync implements the mutex and reader-writer semaphore of
// spec.md §4.G, built on futex (spec.md §4.B) for blocking and
// qspinlock (spec.md §4.C) for the short critical sections that manage
// each primitive's FIFO waiter list.
package ksync

import (
	"sync/atomic"

	"github.com/rancho0755/skp-go/futex"
	"github.com/rancho0755/skp-go/qspinlock"
)

type muWaiter struct {
	word uint32
}

// Mutex is a non-reentrant sleeping lock: count 1 means free, 0 means
// locked and uncontended, negative means locked with waiters queued.
// The zero value is not ready for use (count would start at the
// "locked" encoding); construct one with NewMutex.
type Mutex struct {
	count   atomic.Int32
	mu      qspinlock.Spinlock
	waiters []*muWaiter
}

// NewMutex returns an unlocked Mutex.
func NewMutex() *Mutex {
	m := &Mutex{}
	m.count.Store(1)
	return m
}

// TryLock attempts the uncontended fast path only.
func (m *Mutex) TryLock() bool {
	return m.count.CompareAndSwap(1, 0)
}

// Lock acquires the mutex, sleeping on a futex word if contended.
func (m *Mutex) Lock() {
	if m.count.Add(-1) >= 0 {
		return
	}
	m.lockSlow()
}

func (m *Mutex) lockSlow() {
	w := &muWaiter{}
	for {
		m.mu.Lock()
		m.waiters = append(m.waiters, w)
		m.mu.Unlock()

		if m.count.Swap(-1) == 1 {
			m.mu.Lock()
			for i, x := range m.waiters {
				if x == w {
					m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
					break
				}
			}
			m.mu.Unlock()
			return
		}
		for atomic.LoadUint32(&w.word) == 0 {
			futex.Wait(&w.word, 0, 0)
		}
		atomic.StoreUint32(&w.word, 0)
	}
}

// Unlock releases the mutex, waking the longest-waiting blocked locker
// if any. Unlocking a mutex not held by the caller is a programming
// error and is not detected (see qspinlock.Unlock for the same caveat).
func (m *Mutex) Unlock() {
	if m.count.Swap(1) == 0 {
		return
	}
	m.wakeOne()
}

func (m *Mutex) wakeOne() {
	m.mu.Lock()
	var w *muWaiter
	if len(m.waiters) > 0 {
		w = m.waiters[0]
		m.waiters = m.waiters[1:]
	}
	m.mu.Unlock()
	if w == nil {
		return
	}
	atomic.StoreUint32(&w.word, 1)
	futex.Wake(&w.word, 1)
}

// RecursiveMutex is a Mutex that the same owner may lock repeatedly
// without deadlocking itself. The reference implementation identifies
// the owner via the calling OS thread's id; Go goroutines have no such
// stable identity (a goroutine can resume on a different OS thread after
// blocking), so the caller supplies an explicit owner token instead —
// any caller-chosen value that is stable for the duration of a critical
// section (e.g. kthread.Thread.ID()) works.
type RecursiveMutex struct {
	mu      *Mutex
	ownerMu qspinlock.Spinlock
	owner   int64
	depth   int
}

// NewRecursiveMutex returns an unlocked RecursiveMutex.
func NewRecursiveMutex() *RecursiveMutex {
	return &RecursiveMutex{mu: NewMutex()}
}

// Lock acquires the lock for owner, incrementing the recursion depth if
// owner already holds it.
func (r *RecursiveMutex) Lock(owner int64) {
	r.ownerMu.Lock()
	if r.depth > 0 && r.owner == owner {
		r.depth++
		r.ownerMu.Unlock()
		return
	}
	r.ownerMu.Unlock()

	r.mu.Lock()

	r.ownerMu.Lock()
	r.owner = owner
	r.depth = 1
	r.ownerMu.Unlock()
}

// Unlock decrements the recursion depth, releasing the underlying lock
// only when it reaches zero. Unlock by a non-owner panics.
func (r *RecursiveMutex) Unlock(owner int64) {
	r.ownerMu.Lock()
	if r.depth == 0 || r.owner != owner {
		r.ownerMu.Unlock()
		panic("ksync: RecursiveMutex unlocked by non-owner")
	}
	r.depth--
	done := r.depth == 0
	if done {
		r.owner = 0
	}
	r.ownerMu.Unlock()

	if done {
		r.mu.Unlock()
	}
}
