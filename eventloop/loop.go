package eventloop

import (
	"runtime"
	"sync"
	"time"

	"github.com/rancho0755/skp-go/kthread"
)

// Loop is one CPU-sharded event loop per spec.md §4.K: a dedicated
// kthread.Thread owning one FastPoller, one timer min-heap, one signal
// dispatcher, one async wakeup, and the coarse RCU grace-period queue
// riding on top of the timer heap (see rcu.go).
type Loop struct {
	cpu          int
	poller       *FastPoller
	state        *FastState
	timers       *timerQueue
	signals      *signalDispatcher
	wake         *asyncWake
	pollInterval time.Duration

	asyncMu  sync.Mutex
	asyncFns []func()

	thread *kthread.Thread
}

// Config controls topology for New.
type Config struct {
	// NumLoops is the number of loops to create, one thread each.
	// Defaults to runtime.NumCPU() when <= 0.
	NumLoops int
}

// newLoop constructs one Loop and starts its owning thread running.
func newLoop(cpu int) (*Loop, error) {
	l := &Loop{
		cpu:          cpu,
		poller:       &FastPoller{},
		state:        NewFastState(),
		timers:       newTimerQueue(),
		signals:      newSignalDispatcher(),
		pollInterval: time.Millisecond,
	}
	if err := l.poller.Init(); err != nil {
		return nil, err
	}
	wake, err := newAsyncWake(l.poller, l.drainAsync)
	if err != nil {
		_ = l.poller.Close()
		return nil, err
	}
	l.wake = wake

	l.thread = kthread.Run(func(t *kthread.Thread) { l.run(t) }, nil)
	go l.signals.run(l)
	return l, nil
}

// CPU returns the simulated CPU index this loop is sharded to.
func (l *Loop) CPU() int { return l.cpu }

// State returns the loop's current lifecycle state.
func (l *Loop) State() LoopState { return l.state.Load() }

// runAsync queues fn to run on l's own thread and wakes the loop so it
// notices promptly. Used internally by Stream/Timer/Signal to hand work
// from an arbitrary caller goroutine to the loop thread, and available
// to callers that need to touch loop-owned state safely.
func (l *Loop) runAsync(fn func()) {
	l.asyncMu.Lock()
	l.asyncFns = append(l.asyncFns, fn)
	l.asyncMu.Unlock()
	l.wake.Emit()
}

// drainAsync runs every function queued since the last drain. Invoked
// on the loop thread, either directly by asyncWake's dispatch (Unix) or
// by run's own per-iteration tick (the portable fallback).
func (l *Loop) drainAsync() {
	l.asyncMu.Lock()
	fns := l.asyncFns
	l.asyncFns = nil
	l.asyncMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// run is the loop thread's body: drain queued work, fire due timers,
// block in PollIO for at most the time until the next timer deadline
// (capped by defaultMaxBlockMs), then repeat until Shutdown.
func (l *Loop) run(t *kthread.Thread) {
	l.state.TryTransition(StateAwake, StateRunning)
	for {
		if t.State()&kthread.StateStopping != 0 {
			break
		}

		l.drainAsync()
		l.fireDueTimers()

		if !l.state.TryTransition(StateRunning, StateSleeping) {
			break
		}

		timeoutMs := l.nextTimeoutMs()
		_, _ = l.poller.PollIO(timeoutMs)
		l.wake.tick()

		if !l.state.TryTransition(StateSleeping, StateRunning) {
			// A concurrent Shutdown already moved us to Terminating.
			break
		}
	}

	l.drainAsync()
	l.fireDueTimers()
	l.state.Store(StateTerminated)
}

func (l *Loop) fireDueTimers() {
	for _, timer := range l.timers.popDue(time.Now()) {
		timer.cb()
	}
}

func (l *Loop) nextTimeoutMs() int {
	maxMs := defaultMaxBlockMs
	deadline, ok := l.timers.nextDeadline()
	if !ok {
		return maxMs
	}
	ms := int(time.Until(deadline) / time.Millisecond)
	if ms < 0 {
		ms = 0
	}
	if ms > maxMs {
		ms = maxMs
	}
	return ms
}

// Group is the set of loops New creates: one per simulated CPU index,
// matching spec.md §4.K's "several event loops... sharded by CPU"
// topology. Component L (transport) routes connections to a Group's
// loops by CPU index so a connection's callbacks always run on the same
// loop thread.
type Group struct {
	loops []*Loop
}

// New starts cfg.NumLoops loops (runtime.NumCPU() if unset), one thread
// each, and returns once every loop's thread has been woken.
func New(cfg Config) (*Group, error) {
	n := cfg.NumLoops
	if n <= 0 {
		n = runtime.NumCPU()
	}
	g := &Group{loops: make([]*Loop, n)}
	for i := 0; i < n; i++ {
		l, err := newLoop(i)
		if err != nil {
			g.Shutdown()
			return nil, err
		}
		g.loops[i] = l
	}
	return g, nil
}

// ForCPU returns the loop sharded to the given simulated CPU index,
// modulo the group's size.
func (g *Group) ForCPU(cpu int) *Loop {
	return g.loops[cpu%len(g.loops)]
}

// Len returns the number of loops in the group.
func (g *Group) Len() int { return len(g.loops) }

// Shutdown stops every loop in the group, waiting for each in turn.
func (g *Group) Shutdown() {
	for _, l := range g.loops {
		if l != nil {
			l.Shutdown()
		}
	}
}

// Shutdown requests the loop terminate and blocks until it has fully
// stopped. While the loop thread exits it runs the async work already
// queued and any timers already due one last time; once Shutdown
// returns, no stream or timer callback of this loop runs again.
func (l *Loop) Shutdown() {
	l.state.TransitionAny([]LoopState{StateRunning, StateSleeping, StateAwake}, StateTerminating)
	l.wake.Emit()
	l.thread.Stop()
	l.signals.close()
	_ = l.wake.Close(l.poller)
	_ = l.poller.Close()
}
