package kthread

// tlsCleanup is one registered TLS-style destructor: cb(data) runs once
// when the owning Thread exits.
type tlsCleanup struct {
	cb   func(data any)
	data any
}

// RegisterCleanup pushes a destructor onto t's cleanup list, run in
// last-registered-first-run order when t exits (including a t that was
// marked STOPPING before it ever ran fn).
//
// The reference implementation keys this off a process-wide TLS slot
// reached implicitly from anywhere on the thread's call stack. Go has no
// goroutine-local storage, so the list lives directly on the *Thread
// handle instead; code that wants to register a cleanup takes the
// *Thread its own fn was handed, rather than recovering it from a
// hidden global.
func (t *Thread) RegisterCleanup(cb func(data any), data any) {
	if cb == nil {
		return
	}
	t.cleanupMu.Lock()
	t.cleanups = append(t.cleanups, tlsCleanup{cb: cb, data: data})
	t.cleanupMu.Unlock()
}

func (t *Thread) runCleanups() {
	t.cleanupMu.Lock()
	list := t.cleanups
	t.cleanups = nil
	t.cleanupMu.Unlock()

	for i := len(list) - 1; i >= 0; i-- {
		list[i].cb(list[i].data)
	}
}

// mainThread represents the process's main goroutine: it is never
// produced by Create, so there is no backing trampoline goroutine to run
// its cleanups on exit. Callers defer RunMainCleanups at the top of
// main() to get the reference implementation's atexit-driven behavior,
// since Go has no atexit hook to attach one automatically.
var mainThread = newMainThread()

func newMainThread() *Thread {
	t := &Thread{id: 0}
	t.state.Store(uint32(StateMain))
	return t
}

// MainThread returns the Thread representing the process's main
// goroutine, for registering cleanups that should run via
// RunMainCleanups.
func MainThread() *Thread { return mainThread }

// RunMainCleanups runs and clears MainThread's cleanup list. Call it
// via defer at the top of main to emulate the reference implementation's
// main-thread atexit destructor.
func RunMainCleanups() { mainThread.runCleanups() }
