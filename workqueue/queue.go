package workqueue

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rancho0755/skp-go/kwait"
)

// Config configures a new WorkQueue.
type Config struct {
	// RingCapacity is the per-pool backlog size; must be a power of two.
	RingCapacity uint32
	// UnboundFloor is the minimum number of workers kept alive in the
	// unbound pool even when idle.
	UnboundFloor int
	// UnboundMax is the ceiling on the unbound pool's worker count.
	UnboundMax int
	// IdleTimeout is how long an unbound worker above the floor parks
	// before tearing itself down.
	IdleTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.RingCapacity == 0 {
		c.RingCapacity = 1024
	}
	if c.UnboundFloor <= 0 {
		c.UnboundFloor = 1
	}
	if c.UnboundMax <= 0 {
		c.UnboundMax = runtime.NumCPU()
	}
	if c.UnboundMax < c.UnboundFloor {
		c.UnboundMax = c.UnboundFloor
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 10 * time.Second
	}
}

// WorkQueue owns a bound pool per CPU plus one shared unbound pool, per
// spec.md §4.J.
type WorkQueue struct {
	bound   []*pool
	unbound *pool
	closed  atomic.Bool
}

// New builds a WorkQueue with one bound pool per runtime.NumCPU() and a
// dynamically sized unbound pool.
func New(cfg Config) *WorkQueue {
	cfg.setDefaults()
	wq := &WorkQueue{
		bound:   make([]*pool, runtime.NumCPU()),
		unbound: newPool(cfg.RingCapacity, cfg.UnboundFloor, cfg.UnboundMax, cfg.IdleTimeout),
	}
	for i := range wq.bound {
		// Bound pools run exactly one worker for their whole lifetime —
		// that single worker is what gives queue_work on a bound pool its
		// queue-order execution guarantee, so floor == max == 1 and idle
		// timeout never matters (passed as "wait forever").
		wq.bound[i] = newPool(cfg.RingCapacity, 1, 1, 0)
	}
	return wq
}

// Queue enqueues w on the unbound pool. Returns false if w was already
// pending.
func (wq *WorkQueue) Queue(w *Work) bool {
	return wq.queueOn(wq.unbound, w)
}

// QueueOnCPU enqueues w on the bound pool simulating cpu (cpu is taken
// modulo the number of bound pools). Returns false if w was already
// pending.
func (wq *WorkQueue) QueueOnCPU(cpu int, w *Work) bool {
	return wq.queueOn(wq.bound[cpu%len(wq.bound)], w)
}

func (wq *WorkQueue) queueOn(p *pool, w *Work) bool {
	if !w.trySetPending() {
		return false
	}
	w.pool = p
	p.push(w)
	return true
}

// FlushWork blocks until w has finished running, if it was pending or
// running at the time of the call; returns immediately otherwise.
func FlushWork(w *Work) {
	p := w.pool
	if p == nil {
		return
	}
	if w.flags.Load()&(uint32(flagPending)|uint32(flagRunning)) == 0 {
		return
	}
	p.flushBarrier()
}

func (p *pool) flushBarrier() {
	c := kwait.NewCompletion()
	barrier := &Work{fn: func() { c.Complete(1) }, pool: p}
	p.push(barrier)
	c.WaitForCompletionTimeout(0)
}

// FlushWorkQueue blocks until every work queued on wq before this call
// has finished running, by inserting one barrier per pool and waiting
// for all of them.
func FlushWorkQueue(wq *WorkQueue) {
	pools := make([]*pool, 0, len(wq.bound)+1)
	pools = append(pools, wq.unbound)
	pools = append(pools, wq.bound...)

	completions := make([]*kwait.Completion, len(pools))
	for i, p := range pools {
		c := kwait.NewCompletion()
		barrier := &Work{fn: func() { c.Complete(1) }, pool: p}
		p.push(barrier)
		completions[i] = c
	}
	for _, c := range completions {
		c.WaitForCompletionTimeout(0)
	}
}

// Destroy drains and stops every pool. Pending work is run to
// completion before the underlying workers exit.
func (wq *WorkQueue) Destroy() {
	if !wq.closed.CompareAndSwap(false, true) {
		return
	}
	for _, p := range wq.bound {
		p.shutdown()
	}
	wq.unbound.shutdown()
}
