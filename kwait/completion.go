package kwait

import (
	"time"

	"github.com/rancho0755/skp-go/qspinlock"
)

// Completion is a one-shot-or-repeated "N things happened" signal:
// Complete adds to a count of available "done" units, and each
// WaitForCompletionTimeout call consumes exactly one.
type Completion struct {
	mu   qspinlock.Spinlock
	done int
	q    *WaitQueue
}

// NewCompletion returns a Completion with zero done units available.
func NewCompletion() *Completion {
	return &Completion{q: NewWaitQueue()}
}

// Complete adds n done units and wakes up to n exclusive waiters.
func (c *Completion) Complete(n int) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	c.done += n
	c.mu.Unlock()
	c.q.WakeUp(n, nil)
}

// WaitForCompletionTimeout blocks until a done unit is available or
// timeout elapses (timeout <= 0 waits forever), consuming one unit on
// success. Returns true on success, false on timeout.
func (c *Completion) WaitForCompletionTimeout(timeout time.Duration) bool {
	if ok := c.tryConsume(); ok {
		return true
	}

	w, snap := c.q.PrepareToWait(true, func(any) bool { return true })
	defer c.q.FinishWait(w)

	deadline := deadlineFor(timeout)
	for {
		if c.tryConsume() {
			return true
		}
		wt := remainingTimeout(timeout, deadline)
		if timeout > 0 && wt <= 0 {
			return false
		}
		snap, _ = c.q.WaitOn(snap, wt)
	}
}

func (c *Completion) tryConsume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done > 0 {
		c.done--
		return true
	}
	return false
}

func deadlineFor(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

func remainingTimeout(timeout time.Duration, deadline time.Time) time.Duration {
	if timeout <= 0 {
		return 0
	}
	return time.Until(deadline)
}
