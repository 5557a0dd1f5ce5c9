// Package xprt implements component L: a reference-counted transport
// abstraction (xprt) and the server that owns a list of them, per
// spec.md §4.L. An Xprt wraps one fd registered with an eventloop.Loop
// (component K) for readiness; a Server tracks every Xprt it created and
// blocks its destruction until each has synchronously detached.
//
// # Lifecycle
//
// CreateXprt returns a reference the caller must drop with XprtPut.
// XprtGet/XprtPut implement the shared-ownership refcounting spec.md
// describes; the last Put runs on_shutdown and releases the
// underlying fd. ShutdownXprt transitions the Xprt to closed and
// schedules the release of its event registration (the fd stays open
// until the last Put); DestroyXprt detaches synchronously and drops a
// reference, used by Server.DestroyServer to tear down every tracked Xprt before
// running the server's own destructor.
//
// # Server states
//
// INITING -> RUNNING -> STOPPING -> STOPPED -> DESTROYED. Loop blocks
// the calling goroutine until STOPPING, then STOPPED; DestroyServer
// forces STOPPED if necessary, destroys every tracked Xprt, waits for
// the tracked count to reach zero (a condition wait on a kwait.WaitQueue,
// not a busy poll), then runs the server's destructor.
package xprt
