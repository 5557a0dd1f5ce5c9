// Package kthread implements the thread abstraction of spec.md §4.I: a
// thread control block wrapping a goroutine, created paused and released
// by Wakeup, with an explicit state machine and a per-thread TLS-style
// cleanup list run on exit.
//
// The reference implementation also caches OS thread stacks in a
// liveness-checked LIFO pool and maps a fresh guard-paged stack when the
// pool is empty. Go goroutines have no user-visible stack to cache —
// the runtime already grows, shrinks, and frees goroutine stacks more
// efficiently than a userspace pool could — so that half of component I
// is dropped entirely; the thread-control-block/state-machine/TLS-
// cleanup semantics that remain meaningful on top of a goroutine are
// what this package implements. Likewise, "current" thread-local lookup
// is replaced by explicit handle passing: fn receives its own *Thread
// directly, rather than recovering it through a hidden global keyed by
// an OS thread id Go does not expose for goroutines.
package kthread

import (
	"sync/atomic"

	"github.com/rancho0755/skp-go/kwait"
	"github.com/rancho0755/skp-go/qspinlock"
)

// State is the thread status bitset.
type State uint32

const (
	StateMain State = 1 << iota
	StateRunning
	StateStopping
	StateStopped
	StateWaking
	StateDetached
	StateEventWorker
)

var nextThreadID atomic.Int64

// Thread is a thread control block: a goroutine parked until Wakeup (or
// Run) releases it, with a state bitset and a TLS-style cleanup list run
// on exit.
type Thread struct {
	id    int64
	state atomic.Uint32

	fn  func(t *Thread)
	arg any

	started  *kwait.Completion // released by Wakeup
	observed *kwait.Completion // signaled once RUNNING or STOPPING is reached
	stopped  *kwait.Completion // signaled when fn returns or the thread never runs
	done     chan struct{}     // closed when the goroutine fully exits

	cleanupMu qspinlock.Spinlock
	cleanups  []tlsCleanup
}

// Create allocates a Thread and starts it paused: the backing goroutine
// is running but blocked until Wakeup is called.
func Create(fn func(t *Thread), arg any) *Thread {
	t := &Thread{
		id:       nextThreadID.Add(1),
		fn:       fn,
		arg:      arg,
		started:  kwait.NewCompletion(),
		observed: kwait.NewCompletion(),
		stopped:  kwait.NewCompletion(),
		done:     make(chan struct{}),
	}
	go t.trampoline()
	return t
}

// Run creates a Thread and immediately wakes it.
func Run(fn func(t *Thread), arg any) *Thread {
	t := Create(fn, arg)
	t.Wakeup()
	return t
}

func (t *Thread) trampoline() {
	defer close(t.done)
	defer t.runCleanups()

	t.started.WaitForCompletionTimeout(0) // block until Wakeup/Stop/Kill releases us

	if t.hasState(StateStopping) {
		t.setState(StateStopped)
		t.observed.Complete(1)
		t.stopped.Complete(1)
		return
	}

	t.setState(StateRunning)
	t.observed.Complete(1)

	t.fn(t)

	t.clearState(StateRunning)
	t.setState(StateStopped)
	t.stopped.Complete(1)
}

// ID returns the thread's unique, process-wide identifier (suitable as
// the owner token for ksync.RecursiveMutex).
func (t *Thread) ID() int64 { return t.id }

// Arg returns the argument Thread was created with.
func (t *Thread) Arg() any { return t.arg }

// State returns the current state bitset.
func (t *Thread) State() State { return State(t.state.Load()) }

func (t *Thread) hasState(s State) bool { return State(t.state.Load())&s != 0 }

func (t *Thread) setState(s State) {
	for {
		cur := t.state.Load()
		if t.state.CompareAndSwap(cur, cur|uint32(s)) {
			return
		}
	}
}

func (t *Thread) clearState(s State) {
	for {
		cur := t.state.Load()
		if t.state.CompareAndSwap(cur, cur&^uint32(s)) {
			return
		}
	}
}

// Wakeup releases a thread created paused, blocking until it observes
// RUNNING or STOPPING.
func (t *Thread) Wakeup() {
	t.setState(StateWaking)
	t.started.Complete(1)
	t.observed.WaitForCompletionTimeout(0)
	t.clearState(StateWaking)
}

// Stop marks the thread STOPPING, releasing it if it never ran, and
// blocks until it has fully exited.
func (t *Thread) Stop() {
	t.setState(StateStopping)
	t.started.Complete(1) // no-op if Wakeup already consumed the unit
	<-t.done
}

// Kill is Stop: the reference implementation's pthread_cancel-based fast
// path for a thread that never started running has no safe equivalent
// for an in-flight goroutine (Go provides no way to forcibly terminate
// one), so Kill always takes the same cooperative "mark STOPPING, join"
// path Stop does — the "never ran" fast case is still fast, since the
// trampoline checks STOPPING before invoking fn either way.
func (t *Thread) Kill() { t.Stop() }

// Detach marks the thread DETACHED. A detached Thread frees itself on
// exit in the reference implementation; in Go that's simply what the
// garbage collector already does once nothing references the Thread, so
// Detach has no further effect beyond recording the state bit.
func (t *Thread) Detach() { t.setState(StateDetached) }

// Join blocks until the thread has fully exited (equivalent to calling
// Stop without requesting it stop early — use when the thread is
// expected to run fn to completion on its own).
func (t *Thread) Join() { <-t.done }
