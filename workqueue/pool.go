package workqueue

import (
	"sync/atomic"
	"time"

	"github.com/rancho0755/skp-go/kthread"
	"github.com/rancho0755/skp-go/kwait"
	"github.com/rancho0755/skp-go/qspinlock"
	"github.com/rancho0755/skp-go/ring"
)

// pool is a set of workers draining a single ring of queued Work. A
// bound pool is created with floor == max == 1 (exactly one worker,
// alive for the pool's lifetime, giving it the strict queue-order
// execution spec.md promises for bound pools). An unbound pool is
// created with floor < max: workers above the floor that sit idle
// longer than idleTimeout tear themselves down, matching the spec's
// "excess parked workers beyond a floor count are torn down" rule.
type pool struct {
	ring  *ring.Ring[*Work]
	idleQ *kwait.WaitQueue

	mu         qspinlock.Spinlock
	numWorkers int
	numIdle    int
	floor      int
	max        int
	closing    atomic.Bool

	idleTimeout time.Duration
	workers     []*kthread.Thread
}

func newPool(ringCapacity uint32, floor, max int, idleTimeout time.Duration) *pool {
	p := &pool{
		ring:        ring.New[*Work](ring.Config{Capacity: ringCapacity, Mode: ring.Fixed}),
		idleQ:       kwait.NewWaitQueue(),
		floor:       floor,
		max:         max,
		idleTimeout: idleTimeout,
	}
	for i := 0; i < floor; i++ {
		p.spawnWorker()
	}
	return p
}

func (p *pool) spawnWorker() {
	th := kthread.Run(func(t *kthread.Thread) { p.workerLoop(t) }, nil)
	p.mu.Lock()
	p.numWorkers++
	p.workers = append(p.workers, th)
	p.mu.Unlock()
}

// push enqueues w, growing the pool and waking an idle worker per
// spec.md §4.J's queueing rule: "if the ring was empty and the pool has
// idle workers, wake one."
func (p *pool) push(w *Work) {
	wasEmpty := p.ring.Available() == 0
	for !p.ring.Enqueue(w) {
		// The ring is sized generously for steady-state load; a full ring
		// is transient backpressure from a burst, not a hard limit, so
		// retry rather than drop work the spec promises will eventually run.
	}

	p.mu.Lock()
	idle := p.numIdle
	p.mu.Unlock()
	if wasEmpty && idle > 0 {
		p.idleQ.WakeUp(1, nil)
	}
	p.maybeGrow()
}

func (p *pool) maybeGrow() {
	p.mu.Lock()
	idle := p.numIdle
	n := p.numWorkers
	p.mu.Unlock()
	if idle == 0 && n < p.max {
		p.spawnWorker()
	}
}

func (p *pool) workerLoop(t *kthread.Thread) {
	buf := make([]*Work, 1)
	for {
		if n := p.ring.DequeueBulk(buf); n == 1 {
			w := buf[0]
			w.clearFlag(flagPending)
			w.setFlag(flagRunning)
			w.fn()
			w.clearFlag(flagRunning)
			continue
		}

		if p.closing.Load() {
			return
		}
		if !p.parkIdle() {
			return
		}
	}
}

// parkIdle blocks until work arrives, the idle timeout elapses, or
// shutdown is signaled. It returns false only when this worker has torn
// itself down (excess worker, timed out above the floor).
func (p *pool) parkIdle() bool {
	p.mu.Lock()
	p.numIdle++
	p.mu.Unlock()

	w, snap := p.idleQ.PrepareToWait(true, func(any) bool { return true })
	_, woke := p.idleQ.WaitOn(snap, p.idleTimeout)
	p.idleQ.FinishWait(w)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.numIdle--
	if !woke && !p.closing.Load() && p.numWorkers > p.floor {
		p.numWorkers--
		return false
	}
	return true
}

// shutdown drains remaining work (the worker loop always processes a
// successful dequeue before checking closing) then tears down every
// worker, matching "pending works are drained before destruction
// completes."
func (p *pool) shutdown() {
	p.closing.Store(true)
	p.idleQ.WakeUp(0, nil) // broadcast: every parked worker re-checks closing

	p.mu.Lock()
	workers := append([]*kthread.Thread(nil), p.workers...)
	p.mu.Unlock()
	for _, w := range workers {
		w.Stop()
	}
}
