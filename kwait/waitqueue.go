// Package kwait implements the wait queue, completion, and bit-wait
// primitives of spec.md §4.H, layered on futex (spec.md §4.B) for
// blocking and qspinlock (spec.md §4.C) for the short critical sections
// that manage each queue's waiter list.
package kwait

import (
	"sync/atomic"
	"time"

	"github.com/rancho0755/skp-go/futex"
	"github.com/rancho0755/skp-go/qspinlock"
)

// wakeAllHint is passed to futex.Wake whenever a queue's shared counter
// is bumped: every blocked WaitOn call needs to re-examine the queue
// regardless of which waiter entry (if any) its caller is tracking, so
// there is no meaningful smaller n to pass.
const wakeAllHint = 1 << 30

// Waiter is one registered entry in a WaitQueue, returned by
// PrepareToWait and consumed by WakeUp/FinishWait.
type Waiter struct {
	exclusive bool
	callback  func(key any) bool
}

// WaitQueue is a FIFO list of blocked waiters sharing one futex word.
// The zero value is a valid, empty WaitQueue.
type WaitQueue struct {
	mu      qspinlock.Spinlock
	counter uint32
	list    []*Waiter
}

// NewWaitQueue returns an empty WaitQueue.
func NewWaitQueue() *WaitQueue { return &WaitQueue{} }

// PrepareToWait registers a waiter and returns it along with a snapshot
// of the queue's counter to pass to WaitOn. callback is invoked by
// WakeUp to decide whether this waiter should be considered woken; a
// nil callback always matches. Follow with a loop of
// "check condition; WaitOn" and a deferred FinishWait, mirroring the
// reference implementation's prepare_to_wait/wait_on/finish_wait idiom.
func (q *WaitQueue) PrepareToWait(exclusive bool, callback func(key any) bool) (*Waiter, uint32) {
	if callback == nil {
		callback = func(any) bool { return true }
	}
	w := &Waiter{exclusive: exclusive, callback: callback}

	q.mu.Lock()
	q.list = append(q.list, w)
	snap := atomic.LoadUint32(&q.counter)
	q.mu.Unlock()
	return w, snap
}

// WaitOn blocks until the queue's counter advances past snapshot (a
// WakeUp occurred) or timeout elapses (timeout <= 0 waits forever). It
// returns the refreshed counter value to pass to the next WaitOn call,
// and whether a change was actually observed.
func (q *WaitQueue) WaitOn(snapshot uint32, timeout time.Duration) (uint32, bool) {
	woke := futex.Wait(&q.counter, snapshot, timeout)
	return atomic.LoadUint32(&q.counter), woke
}

// FinishWait deregisters w. Safe to call even if w was already removed
// by WakeUp.
func (q *WaitQueue) FinishWait(w *Waiter) {
	q.mu.Lock()
	for i, ww := range q.list {
		if ww == w {
			q.list = append(q.list[:i], q.list[i+1:]...)
			break
		}
	}
	q.mu.Unlock()
}

// WakeUp walks the waiter list in FIFO order, invoking each entry's
// callback with key. n bounds how many EXCLUSIVE matches are honored
// before the walk stops (n <= 0 means unlimited — every matching waiter
// is notified, none are skipped). A matched waiter is dropped from the
// list only when n is finite: an unlimited (broadcast) wake leaves every
// matched waiter registered, since nothing hands it a scarce resource —
// it is responsible for calling FinishWait itself once its own
// condition is satisfied. Returns the number of waiters matched.
func (q *WaitQueue) WakeUp(n int, key any) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	unlimited := n <= 0
	budget := n
	woken := 0
	stopped := false
	kept := q.list[:0:0]

	for _, w := range q.list {
		if stopped || !w.callback(key) {
			kept = append(kept, w)
			continue
		}
		woken++
		if unlimited {
			kept = append(kept, w)
			continue
		}
		if w.exclusive {
			budget--
			if budget <= 0 {
				stopped = true
			}
		}
	}
	q.list = kept

	if woken > 0 {
		atomic.AddUint32(&q.counter, 1)
		futex.Wake(&q.counter, wakeAllHint)
	}
	return woken
}
