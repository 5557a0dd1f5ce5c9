package eventloop

import (
	"container/heap"
	"sync"
	"time"
)

// Timer is a handle returned by Loop.TimerAdd, wrapping one entry in the
// loop's deadline min-heap. It implements spec.md §4.K's
// timer_add/timer_modify/timer_delete_sync family.
type Timer struct {
	deadline time.Time
	cb       func()
	index    int // position in the heap, maintained by container/heap
	canceled bool
}

// timerHeap is a container/heap.Interface over *Timer, ordered by
// ascending deadline so Peek/Pop always give the next timer due to
// fire.
type timerHeap []*Timer

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x interface{}) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}

// timerQueue guards a timerHeap for concurrent TimerAdd/Cancel calls
// racing the loop thread's own pop-and-fire pass. TimerAdd and
// TimerModify push onto the heap from the caller's goroutine, while
// TimerDeleteSync runs its removal on the loop thread via runAsync
// (loop.go); mu serializes all of these with the loop's popDue.
type timerQueue struct {
	mu sync.Mutex
	h  timerHeap
}

func newTimerQueue() *timerQueue {
	q := &timerQueue{}
	heap.Init(&q.h)
	return q
}

func (q *timerQueue) add(t *Timer) {
	q.mu.Lock()
	heap.Push(&q.h, t)
	q.mu.Unlock()
}

func (q *timerQueue) remove(t *Timer) {
	q.mu.Lock()
	if t.index >= 0 && t.index < len(q.h) && q.h[t.index] == t {
		heap.Remove(&q.h, t.index)
	}
	t.canceled = true
	q.mu.Unlock()
}

// nextDeadline reports the earliest pending deadline, if any.
func (q *timerQueue) nextDeadline() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 {
		return time.Time{}, false
	}
	return q.h[0].deadline, true
}

// popDue pops and returns every timer whose deadline is <= now, in
// ascending deadline order.
func (q *timerQueue) popDue(now time.Time) []*Timer {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []*Timer
	for len(q.h) > 0 && !q.h[0].deadline.After(now) {
		t := heap.Pop(&q.h).(*Timer)
		if !t.canceled {
			due = append(due, t)
		}
	}
	return due
}

// TimerAdd schedules cb to run on l's thread once, at now+d.
func (l *Loop) TimerAdd(d time.Duration, cb func()) *Timer {
	t := &Timer{deadline: time.Now().Add(d), cb: cb}
	l.timers.add(t)
	l.wake.Emit()
	return t
}

// TimerModify reschedules t to fire at now+d instead of its original
// deadline. Per spec.md §4.K this is delete+re-add under the hood, since
// container/heap has no O(log n) decrease-key/increase-key primitive
// exposed generically.
func (l *Loop) TimerModify(t *Timer, d time.Duration) {
	l.timers.remove(t)
	t.canceled = false
	t.deadline = time.Now().Add(d)
	l.timers.add(t)
	l.wake.Emit()
}

// TimerDeleteSync cancels t, guaranteeing that after this call returns,
// t's callback will never run (if it hasn't already started).
func (l *Loop) TimerDeleteSync(t *Timer) {
	done := make(chan struct{})
	l.runAsync(func() {
		l.timers.remove(t)
		close(done)
	})
	<-done
}
