package workqueue

import (
	"time"

	"github.com/rancho0755/skp-go/qspinlock"
)

// DelayedWork wraps a Work with a timer, per spec.md §4.J's
// delayed_work: the timer callback enqueues the underlying work into
// the chosen pool once it fires.
type DelayedWork struct {
	Work

	timerMu qspinlock.Spinlock
	timer   *time.Timer
}

// NewDelayedWork wraps fn as a DelayedWork ready to Schedule.
func NewDelayedWork(fn func()) *DelayedWork {
	return &DelayedWork{Work: Work{fn: fn}}
}

// Schedule arms dw to be queued on wq's unbound pool after d elapses.
// Returns false if dw was already pending (scheduled or queued).
func (dw *DelayedWork) Schedule(wq *WorkQueue, d time.Duration) bool {
	return dw.schedule(wq.unbound, d)
}

// ScheduleOnCPU is Schedule targeting the bound pool simulating cpu.
func (dw *DelayedWork) ScheduleOnCPU(wq *WorkQueue, cpu int, d time.Duration) bool {
	return dw.schedule(wq.bound[cpu%len(wq.bound)], d)
}

func (dw *DelayedWork) schedule(p *pool, d time.Duration) bool {
	if !dw.trySetPending() {
		return false
	}
	dw.setFlag(flagDelayed)

	dw.timerMu.Lock()
	dw.timer = time.AfterFunc(d, func() {
		dw.clearFlag(flagDelayed)
		dw.pool = p
		p.push(&dw.Work)
	})
	dw.timerMu.Unlock()
	return true
}

// Cancel stops the pending timer before it fires, returning true if it
// successfully prevented the work from being queued. A false return
// means the timer had already fired (or was never armed).
func (dw *DelayedWork) Cancel() bool {
	dw.timerMu.Lock()
	t := dw.timer
	dw.timerMu.Unlock()
	if t == nil {
		return false
	}

	stopped := t.Stop()
	if stopped {
		dw.clearFlag(flagDelayed)
		dw.clearFlag(flagPending)
	}
	return stopped
}
