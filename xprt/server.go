package xprt

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rancho0755/skp-go/kwait"
	"github.com/rancho0755/skp-go/skperr"
)

// ServerState is a Server's lifecycle state, per spec.md §4.L's
// INITING -> RUNNING -> STOPPING -> STOPPED -> DESTROYED.
type ServerState uint32

const (
	Initing ServerState = iota
	Running
	Stopping
	Stopped
	Destroyed
)

func (s ServerState) String() string {
	switch s {
	case Initing:
		return "INITING"
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	case Stopped:
		return "STOPPED"
	case Destroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

// Server owns a list of Xprt instances created on its behalf and
// coordinates their destruction, per spec.md §4.L.
type Server struct {
	state atomic.Uint32

	mu    sync.Mutex
	xprts map[*Xprt]struct{}

	nrXprts atomic.Int64
	stateQ  *kwait.WaitQueue
	doneQ   *kwait.WaitQueue

	destructor func()
	log        zerolog.Logger
}

// NewServer returns a Server in the INITING state. destructor runs once,
// at the end of DestroyServer, after every tracked xprt has been
// destroyed.
func NewServer(destructor func(), log zerolog.Logger) *Server {
	return &Server{
		xprts:      make(map[*Xprt]struct{}),
		stateQ:     kwait.NewWaitQueue(),
		doneQ:      kwait.NewWaitQueue(),
		destructor: destructor,
		log:        log,
	}
}

// State returns the server's current lifecycle state.
func (s *Server) State() ServerState { return ServerState(s.state.Load()) }

func (s *Server) setState(st ServerState) {
	s.state.Store(uint32(st))
	s.stateQ.WakeUp(0, nil)
}

// Start transitions the server from INITING to RUNNING.
func (s *Server) Start() error {
	if !compareAndSwapState(&s.state, Initing, Running) {
		return skperr.ErrWrongState
	}
	s.stateQ.WakeUp(0, nil)
	return nil
}

// Stop requests the server transition to STOPPING. ServerLoop callers
// blocked in Loop wake once this happens.
func (s *Server) Stop() {
	if compareAndSwapState(&s.state, Running, Stopping) {
		s.stateQ.WakeUp(0, nil)
	}
}

// Loop blocks the calling goroutine until the server reaches STOPPING,
// then blocks again until it reaches STOPPED — matching spec.md §4.L's
// server_loop, which is meant to be run from whatever goroutine owns the
// process's main wait (DestroyServer drives the STOPPED transition).
func (s *Server) Loop() {
	waitCond(s.stateQ, func() bool { return s.State() >= Stopping })
	waitCond(s.stateQ, func() bool { return s.State() >= Stopped })
}

// AddXprt registers x with the server, taking a reference held until
// the server destroys x (directly or via DestroyServer). Returns
// skperr.ErrWrongState if the server is already STOPPED or DESTROYED.
func (s *Server) AddXprt(x *Xprt) error {
	if s.State() >= Stopped {
		return skperr.ErrWrongState
	}
	XprtGet(x)
	x.serverMu.Lock()
	x.server = s
	x.serverMu.Unlock()

	s.mu.Lock()
	s.xprts[x] = struct{}{}
	s.mu.Unlock()
	s.nrXprts.Add(1)
	return nil
}

// forget removes x from the server's tracking without destroying it;
// called by DestroyXprt just before it drops the server's reference.
func (s *Server) forget(x *Xprt) {
	s.mu.Lock()
	_, tracked := s.xprts[x]
	delete(s.xprts, x)
	s.mu.Unlock()
	if tracked {
		if s.nrXprts.Add(-1) == 0 {
			s.doneQ.WakeUp(0, nil)
		}
	}
}

// DestroyServer forces the server to STOPPED if it has not already
// reached that state, destroys every tracked xprt (draining concurrently
// via errgroup, mirroring the corpus's errgroup-based fan-in), waits for
// the tracked count to reach zero, then runs the destructor and marks
// the server DESTROYED. Safe to call at most once.
func (s *Server) DestroyServer() {
	for {
		cur := ServerState(s.state.Load())
		if cur >= Stopped {
			break
		}
		if compareAndSwapState(&s.state, cur, Stopped) {
			s.stateQ.WakeUp(0, nil)
			break
		}
	}

	s.mu.Lock()
	victims := make([]*Xprt, 0, len(s.xprts))
	for x := range s.xprts {
		victims = append(victims, x)
	}
	s.mu.Unlock()

	var g errgroup.Group
	for _, x := range victims {
		x := x
		g.Go(func() error {
			DestroyXprt(x)
			return nil
		})
	}
	_ = g.Wait()

	waitCond(s.doneQ, func() bool { return s.nrXprts.Load() == 0 })

	if s.destructor != nil {
		s.destructor()
	}
	s.state.Store(uint32(Destroyed))
	s.stateQ.WakeUp(0, nil)
}

// compareAndSwapState is a small typed wrapper around the underlying
// atomic.Uint32 CAS, since ServerState is not itself an atomic type.
func compareAndSwapState(v *atomic.Uint32, from, to ServerState) bool {
	return v.CompareAndSwap(uint32(from), uint32(to))
}

// waitCond blocks until cond returns true, re-checking whenever q
// broadcasts a change — the condition-wait idiom spec.md §4.L names
// explicitly for the nr_xprts == 0 rendezvous, generalized here since
// Server.Loop needs the identical pattern for its state transitions.
func waitCond(q *kwait.WaitQueue, cond func() bool) {
	if cond() {
		return
	}
	w, snap := q.PrepareToWait(false, nil)
	defer q.FinishWait(w)
	for !cond() {
		snap, _ = q.WaitOn(snap, 0)
	}
}
