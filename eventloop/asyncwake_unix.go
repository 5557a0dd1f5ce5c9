//go:build linux || darwin

package eventloop

import "sync/atomic"

// asyncWake implements spec.md §4.K's async wakeup: an emitter in any
// goroutine can nudge a sleeping Loop without knowing what it's doing,
// and concurrent emits before the loop notices collapse into a single
// callback invocation per loop iteration.
//
// armed gates writeWake: the first Emit after the loop drains the fd
// flips it false->true and actually writes; every Emit that lands
// before the loop's next drain sees it already true and is a no-op.
// The loop's read side (onReadable) drains the fd and clears armed
// before invoking cb, so a wake that arrives during cb's execution is
// not lost — it rearms the fd for the following iteration.
type asyncWake struct {
	fd, writeFd int
	armed       atomic.Bool
	cb          func()
}

// newAsyncWake creates the wake fd pair and registers the read end with
// p for EventRead|EventEdge, so a single write only ever delivers one
// readiness notification no matter how many bytes accumulate.
func newAsyncWake(p *FastPoller, cb func()) (*asyncWake, error) {
	fd, writeFd, err := createWakeFd(0, EFD_CLOEXEC|EFD_NONBLOCK)
	if err != nil {
		return nil, err
	}
	w := &asyncWake{fd: fd, writeFd: writeFd, cb: cb}
	if err := p.RegisterFD(fd, EventRead|EventEdge, w.onReadable); err != nil {
		_ = closeWakeFd(fd, writeFd)
		return nil, err
	}
	return w, nil
}

// Emit requests one callback invocation on the owning loop. Safe to call
// from any goroutine, including concurrently with itself.
func (w *asyncWake) Emit() {
	if w.armed.CompareAndSwap(false, true) {
		_ = writeWake(w.writeFd)
	}
}

// onReadable runs on the loop thread via FastPoller's dispatch.
func (w *asyncWake) onReadable(IOEvents) {
	_ = drainWake(w.fd)
	w.armed.Store(false)
	w.cb()
}

// defaultMaxBlockMs bounds how long PollIO may block when no timer is
// pending. It can be generous here since a registered wake fd
// interrupts PollIO immediately on Emit.
const defaultMaxBlockMs = 60_000

// tick is a no-op on platforms with a registered wake fd: FastPoller's
// dispatch already invokes onReadable directly, so the loop never needs
// to poll asyncWake itself.
func (w *asyncWake) tick() {}

// Close unregisters and releases the wake fd pair.
func (w *asyncWake) Close(p *FastPoller) error {
	_ = p.UnregisterFD(w.fd)
	return closeWakeFd(w.fd, w.writeFd)
}
