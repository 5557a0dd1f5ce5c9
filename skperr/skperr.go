// Package skperr declares the sentinel errors shared across every component
// of the runtime, so callers can errors.Is against a single source
// regardless of which package produced the error.
//
// Not every component reports through these: eventloop returns its own
// ErrFD* values for registration failures, and ErrTimedout,
// ErrInterrupted, ErrAlreadyRegistered, ErrNotRegistered,
// ErrAlreadyStopped and ErrNoSuchEntry are not returned by any package in
// this module.
package skperr

import "errors"

// Soft errors, returned by value: callers are expected to check and handle
// these. Programming errors are not in this list either: a RecursiveMutex
// unlocked by a non-owner panics, while a double unlock of a Spinlock or
// Mutex, and a double or non-head FreePages, are not detected.
var (
	// ErrOutOfMemory is returned when no page or slab could be obtained to
	// satisfy an allocation request.
	ErrOutOfMemory = errors.New("skp: out of memory")

	// ErrInvalidArgument is returned for misaligned sizes, non-power-of-two
	// capacities, or otherwise malformed configuration.
	ErrInvalidArgument = errors.New("skp: invalid argument")

	// ErrWouldBlock is returned by non-blocking operations that cannot
	// complete immediately.
	ErrWouldBlock = errors.New("skp: would block")

	// ErrTimedout is returned when a bounded wait expires before its
	// condition is satisfied.
	ErrTimedout = errors.New("skp: timed out")

	// ErrInterrupted is returned when a blocking wait is woken spuriously
	// by a signal-like interruption and the caller must retry.
	ErrInterrupted = errors.New("skp: interrupted")

	// ErrBrokenPipe is returned on writes to a transport whose peer has
	// gone away.
	ErrBrokenPipe = errors.New("skp: broken pipe")

	// ErrAlreadyRegistered is returned when registering an event source
	// (fd, timer, signal) that is already registered.
	ErrAlreadyRegistered = errors.New("skp: already registered")

	// ErrNotRegistered is returned when operating on an event source that
	// was never registered, or was already deleted.
	ErrNotRegistered = errors.New("skp: not registered")

	// ErrAlreadyStopped is returned when starting, or double-stopping, an
	// xprt or server that has already left the running state.
	ErrAlreadyStopped = errors.New("skp: already stopped")

	// ErrWrongState is returned when an operation is attempted from a
	// lifecycle state that does not permit it.
	ErrWrongState = errors.New("skp: wrong state")

	// ErrNoSuchEntry is returned by lookup operations (IDR/dictionary —
	// outside the hard core) that find no matching entry.
	ErrNoSuchEntry = errors.New("skp: no such entry")
)
