package eventloop

import (
	"errors"
	"sync"
)

// ErrStreamClosed is returned by stream operations after DeleteSync (or a
// pending DeleteAsync) has taken effect.
var ErrStreamClosed = errors.New("eventloop: stream closed")

// streamState tracks a registered fd's lifecycle so DeleteSync can give
// its "callback guaranteed not running" promise without blocking the
// loop thread on itself.
type streamState uint32

const (
	streamActive streamState = iota
	streamDeleting
	streamDeleted
)

// Stream is a handle returned by Loop.StreamAdd, wrapping one fd
// registered with the loop's FastPoller. It implements spec.md §4.K's
// uev_stream_init/add/delete_async/delete_sync family.
type Stream struct {
	loop  *Loop
	fd    int
	mu    sync.Mutex
	state streamState
	cb    func(IOEvents)
}

// StreamAdd registers fd for the given event mask (EventRead, EventWrite,
// and/or EventEdge) on l, invoking cb on l's own thread whenever fd
// becomes ready. It corresponds to uev_stream_init followed immediately
// by uev_stream_add in the reference model — Go has no use for a
// separate "allocate the watcher" step since Stream is already a
// reference type.
func (l *Loop) StreamAdd(fd int, events IOEvents, cb func(IOEvents)) (*Stream, error) {
	s := &Stream{loop: l, fd: fd, state: streamActive}
	s.cb = func(ev IOEvents) {
		s.mu.Lock()
		active := s.state == streamActive
		s.mu.Unlock()
		if active {
			cb(ev)
		}
	}
	if err := l.poller.RegisterFD(fd, events, s.cb); err != nil {
		return nil, err
	}
	return s, nil
}

// Modify changes the monitored event mask for the stream's fd.
func (s *Stream) Modify(events IOEvents) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != streamActive {
		return ErrStreamClosed
	}
	return s.loop.poller.ModifyFD(s.fd, events)
}

// DeleteAsync marks the stream dead and schedules its fd for
// unregistration on the loop thread, returning immediately. A callback
// invocation already in flight on the loop thread may still complete,
// but no new invocation will start. Use this from within the stream's
// own callback, or when the caller does not need the stronger
// DeleteSync guarantee.
func (s *Stream) DeleteAsync() {
	s.mu.Lock()
	if s.state != streamActive {
		s.mu.Unlock()
		return
	}
	s.state = streamDeleting
	s.mu.Unlock()

	s.loop.runAsync(func() {
		s.finishDelete()
	})
}

// DeleteSync unregisters the stream's fd and blocks until the loop
// guarantees no further invocation of its callback will ever occur —
// including one already in flight, per spec.md §4.K's invariant that
// delete_sync fully serializes with the loop thread. Must not be called
// from the stream's own loop thread (it would deadlock waiting on
// itself); use DeleteAsync from inside a callback instead.
func (s *Stream) DeleteSync() {
	s.mu.Lock()
	if s.state == streamDeleted {
		s.mu.Unlock()
		return
	}
	s.state = streamDeleting
	s.mu.Unlock()

	done := make(chan struct{})
	s.loop.runAsync(func() {
		s.finishDelete()
		close(done)
	})
	<-done
}

// finishDelete runs on the loop thread: unregister the fd, then mark
// deleted so any racing callback invocation (already copied out of the
// poller's dispatch table before unregistration) observes the dead
// state and no-ops.
func (s *Stream) finishDelete() {
	_ = s.loop.poller.UnregisterFD(s.fd)
	s.mu.Lock()
	s.state = streamDeleted
	s.mu.Unlock()
}
