package xprt

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/rancho0755/skp-go/eventloop"
	"github.com/rancho0755/skp-go/skperr"
)

// Flags drive an Xprt's initial state at CreateXprt time, per
// spec.md §4.L.
type Flags uint32

const (
	// TCPServ marks the xprt as a listening socket: it accepts
	// connections rather than carrying application data itself.
	TCPServ Flags = 1 << iota
	// TCPClnt marks the xprt as an outbound connection.
	TCPClnt
	// OptNonblock marks the underlying fd non-blocking. CreateXprt
	// always sets O_NONBLOCK on the fd regardless of this flag — it is
	// accepted for API parity with the reference model, where blocking
	// fds were historically permitted.
	OptNonblock
	// RdReady adds initial read interest.
	RdReady
	// WrReady adds initial write interest.
	WrReady
)

// State is an Xprt's lifecycle state, reported to Handlers.OnChanged.
type State uint32

const (
	Opening State = iota
	Opened
	ConnRefused
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Opening:
		return "OPENING"
	case Opened:
		return "OPENED"
	case ConnRefused:
		return "CONN_REFUSED"
	case Closing:
		return "CLOSING"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Handlers are the per-op callbacks spec.md §4.L names. All are
// optional (a nil handler is skipped); OnRecv/OnSend only fire if the
// corresponding readiness interest was requested.
type Handlers struct {
	// OnRecv is called while the read side is ready. Per spec.md §4.L it
	// must drain to EAGAIN (or shut down) before returning.
	OnRecv func(x *Xprt)
	// OnSend is called while the write side is ready. It must drain
	// pending writes, and call x.DisableWrite once nothing is left to
	// send — CreateXprt registers the fd level-triggered (without
	// EventEdge), so while write interest stays enabled OnSend fires on
	// every poll.
	OnSend func(x *Xprt)
	// OnChanged is called on every state transition.
	OnChanged func(x *Xprt, state State)
	// DoHandshake runs once before the xprt is marked Opened, if set
	// (used by protocols layered on top, e.g. TLS). A non-nil error
	// transitions the xprt to ConnRefused instead.
	DoHandshake func(x *Xprt) error
	// OnShutdown is the final close hook, run exactly once when the
	// last reference is dropped.
	OnShutdown func(x *Xprt)
}

// Xprt is a reference-counted transport: one fd registered with an
// eventloop.Loop for readiness, plus the bookkeeping CreateXprt/
// XprtGet/XprtPut/ShutdownXprt/DestroyXprt operate on.
type Xprt struct {
	fd     int
	flags  Flags
	loop   *eventloop.Loop
	stream *eventloop.Stream
	h      Handlers
	log    zerolog.Logger

	refs    atomic.Int32
	state   atomic.Uint32
	events  atomic.Uint32 // current eventloop.IOEvents mask
	closeMu sync.Mutex
	closed  bool

	server   *Server
	serverMu sync.Mutex
}

// CreateXprt wraps fd (already created, e.g. by ListenTCP/DialTCP) in an
// Xprt registered with loop, and returns a reference the caller must
// drop with XprtPut. fd is always set non-blocking, regardless of
// whether OptNonblock is passed.
func CreateXprt(loop *eventloop.Loop, fd int, flags Flags, h Handlers, log zerolog.Logger) (*Xprt, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, err
	}

	x := &Xprt{fd: fd, flags: flags, loop: loop, h: h, log: log}
	x.refs.Store(1)
	x.state.Store(uint32(Opening))

	var mask eventloop.IOEvents
	if flags&RdReady != 0 {
		mask |= eventloop.EventRead
	}
	if flags&WrReady != 0 {
		mask |= eventloop.EventWrite
	}
	x.events.Store(uint32(mask))

	stream, err := loop.StreamAdd(fd, mask, x.onReadiness)
	if err != nil {
		return nil, err
	}
	x.stream = stream

	if h.DoHandshake != nil {
		if err := h.DoHandshake(x); err != nil {
			x.transition(ConnRefused)
			return x, nil
		}
	}
	x.transition(Opened)
	return x, nil
}

// FD returns the underlying file descriptor. Callers must not close it
// directly; use ShutdownXprt/DestroyXprt/XprtPut instead.
func (x *Xprt) FD() int { return x.fd }

// State returns the xprt's current lifecycle state.
func (x *Xprt) State() State { return State(x.state.Load()) }

func (x *Xprt) transition(s State) {
	x.state.Store(uint32(s))
	if x.h.OnChanged != nil {
		x.h.OnChanged(x, s)
	}
}

func (x *Xprt) onReadiness(ev eventloop.IOEvents) {
	if ev&eventloop.EventRead != 0 && x.h.OnRecv != nil {
		x.h.OnRecv(x)
	}
	if ev&eventloop.EventWrite != 0 && x.h.OnSend != nil {
		x.h.OnSend(x)
	}
	if ev&(eventloop.EventError|eventloop.EventHangup) != 0 {
		ShutdownXprt(x)
	}
}

// DisableWrite removes write interest, per spec.md §4.L's on_send
// contract: once there is no more data to send, the writer disables
// write readiness rather than spinning on repeated wakeups.
func (x *Xprt) DisableWrite() {
	mask := eventloop.IOEvents(x.events.Load()) &^ eventloop.EventWrite
	x.events.Store(uint32(mask))
	_ = x.stream.Modify(mask)
}

// EnableWrite adds write interest back, e.g. when a send could not
// fully drain and must be retried once the fd is writable again.
func (x *Xprt) EnableWrite() {
	mask := eventloop.IOEvents(x.events.Load()) | eventloop.EventWrite
	x.events.Store(uint32(mask))
	_ = x.stream.Modify(mask)
}

// Read reads directly from the underlying fd. Returns skperr.ErrWouldBlock
// translated from EAGAIN so OnRecv can distinguish "drained" from a real
// error.
func (x *Xprt) Read(buf []byte) (int, error) {
	n, err := unix.Read(x.fd, buf)
	if err == unix.EAGAIN {
		return 0, skperr.ErrWouldBlock
	}
	return n, err
}

// Write writes directly to the underlying fd.
func (x *Xprt) Write(buf []byte) (int, error) {
	n, err := unix.Write(x.fd, buf)
	if err == unix.EAGAIN {
		return 0, skperr.ErrWouldBlock
	}
	if err == unix.EPIPE {
		return n, skperr.ErrBrokenPipe
	}
	return n, err
}

// XprtGet increments x's refcount and returns x, for the common
// "store a second owner" call pattern.
func XprtGet(x *Xprt) *Xprt {
	x.refs.Add(1)
	return x
}

// XprtPut decrements x's refcount. The last Put runs OnShutdown and
// releases the fd and its loop registration.
func XprtPut(x *Xprt) {
	if x.refs.Add(-1) > 0 {
		return
	}
	x.closeMu.Lock()
	defer x.closeMu.Unlock()
	if x.closed {
		return
	}
	x.closed = true

	if x.h.OnShutdown != nil {
		x.h.OnShutdown(x)
	}
	x.stream.DeleteSync()
	_ = unix.Close(x.fd)
}

// ShutdownXprt transitions x through Closing to Closed and schedules
// (asynchronously, from x's own callback or any other goroutine) the
// release of its loop registration — the counterpart of spec.md §4.L's
// shutdown_xprt(SHUT_RDWR). It does not call shutdown(2) on the socket
// and does not close the fd: the fd is closed by the last XprtPut, and
// ShutdownXprt drops no reference; call XprtPut once the caller is done
// with the handle.
func ShutdownXprt(x *Xprt) {
	if x.State() == Closed || x.State() == Closing {
		return
	}
	x.transition(Closing)
	x.stream.DeleteAsync()
	x.transition(Closed)
}

// DestroyXprt synchronously detaches x's event registration and drops
// the server's reference, per spec.md §4.L's destroy_xprt. Used by
// Server.DestroyServer; safe to call directly for a standalone xprt with
// no server.
func DestroyXprt(x *Xprt) {
	if x.State() != Closed && x.State() != Closing {
		x.transition(Closing)
		x.transition(Closed)
	}
	x.stream.DeleteSync()

	x.serverMu.Lock()
	srv := x.server
	x.server = nil
	x.serverMu.Unlock()
	if srv != nil {
		srv.forget(x)
	}
	XprtPut(x)
}
