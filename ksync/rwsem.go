package ksync

import (
	"sync/atomic"

	"github.com/rancho0755/skp-go/futex"
	"github.com/rancho0755/skp-go/qspinlock"
)

type rwKind int

const (
	rwRead rwKind = iota
	rwWrite
)

type rwWaiter struct {
	kind rwKind
	word uint32
}

// RWSem is a reader-writer semaphore with a FIFO waiter list: a writer
// that arrives while readers hold the lock queues behind them. A reader
// arriving while readers hold the lock joins them at once, even ahead of
// a queued writer; a reader arriving while the lock is free but waiters
// are queued, or while a writer holds it, queues in FIFO order. The
// zero value is not ready for use; construct one with NewRWSem.
type RWSem struct {
	activity atomic.Int32 // >0 readers, 0 free, -1 writer
	mu       qspinlock.Spinlock
	waiters  []*rwWaiter
}

// NewRWSem returns a free RWSem.
func NewRWSem() *RWSem {
	return &RWSem{}
}

// RLock acquires a read lock.
func (r *RWSem) RLock() {
	r.mu.Lock()
	a := r.activity.Load()
	if a >= 0 && (a > 0 || len(r.waiters) == 0) {
		r.activity.Add(1)
		r.mu.Unlock()
		return
	}
	w := &rwWaiter{kind: rwRead}
	r.waiters = append(r.waiters, w)
	r.mu.Unlock()

	for atomic.LoadUint32(&w.word) == 0 {
		futex.Wait(&w.word, 0, 0)
	}
}

// RUnlock releases a read lock.
func (r *RWSem) RUnlock() {
	r.mu.Lock()
	a := r.activity.Add(-1)
	if a != 0 || len(r.waiters) == 0 {
		r.mu.Unlock()
		return
	}
	// Only a writer can be queued while readers are draining to zero
	// (see Lock's fast-path condition), so the front of the list is a
	// WRITE waiter.
	w := r.waiters[0]
	r.waiters = r.waiters[1:]
	r.activity.Store(-1)
	r.mu.Unlock()

	atomic.StoreUint32(&w.word, 1)
	futex.Wake(&w.word, 1)
}

// Lock acquires a write lock.
func (r *RWSem) Lock() {
	r.mu.Lock()
	if r.activity.Load() == 0 && len(r.waiters) == 0 {
		r.activity.Store(-1)
		r.mu.Unlock()
		return
	}
	w := &rwWaiter{kind: rwWrite}
	r.waiters = append(r.waiters, w)
	r.mu.Unlock()

	for atomic.LoadUint32(&w.word) == 0 {
		futex.Wait(&w.word, 0, 0)
	}
}

// Unlock releases a write lock, waking either the next writer or the
// leading run of queued readers.
func (r *RWSem) Unlock() {
	r.mu.Lock()
	r.activity.Store(0)
	if len(r.waiters) == 0 {
		r.mu.Unlock()
		return
	}

	if r.waiters[0].kind == rwWrite {
		w := r.waiters[0]
		r.waiters = r.waiters[1:]
		r.activity.Store(-1)
		r.mu.Unlock()
		atomic.StoreUint32(&w.word, 1)
		futex.Wake(&w.word, 1)
		return
	}

	granted := r.leadingReaders()
	r.activity.Store(int32(len(granted)))
	r.mu.Unlock()
	wakeAll(granted)
}

// DowngradeWrite converts a held write lock into a held read lock,
// admitting the leading run of queued readers (if any) alongside it.
func (r *RWSem) DowngradeWrite() {
	r.mu.Lock()
	granted := r.leadingReaders()
	r.activity.Store(int32(1 + len(granted)))
	r.mu.Unlock()
	wakeAll(granted)
}

// leadingReaders pops and returns the leading run of READ waiters (up to
// the first WRITE waiter or the end of the list). Caller holds r.mu.
func (r *RWSem) leadingReaders() []*rwWaiter {
	i := 0
	for i < len(r.waiters) && r.waiters[i].kind == rwRead {
		i++
	}
	granted := r.waiters[:i:i]
	r.waiters = r.waiters[i:]
	return granted
}

func wakeAll(ws []*rwWaiter) {
	for _, w := range ws {
		atomic.StoreUint32(&w.word, 1)
		futex.Wake(&w.word, 1)
	}
}
