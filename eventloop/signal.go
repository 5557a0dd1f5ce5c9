package eventloop

import (
	"os"
	"os/signal"
	"sync"
)

// signalDispatcher delivers OS signals to loop-thread callbacks. Go's
// runtime already does the async-signal-safe part for us: os/signal's
// internal handler runs in the runtime's signal handling path and only
// ever does a non-blocking channel send, so there is no need to
// reimplement signalfd or a self-pipe by hand here — we just need to get
// the notification off of the delivery goroutine and onto the owning
// Loop's thread, which is what spec.md §4.K actually requires (deferring
// the real work out of async-signal-safety-only context).
type signalDispatcher struct {
	mu   sync.Mutex
	subs map[os.Signal][]func(os.Signal)
	ch   chan os.Signal
	stop chan struct{}
}

func newSignalDispatcher() *signalDispatcher {
	return &signalDispatcher{
		subs: make(map[os.Signal][]func(os.Signal)),
		ch:   make(chan os.Signal, 16),
		stop: make(chan struct{}),
	}
}

// SignalAdd registers cb to run on l's thread whenever sig is delivered
// to the process. It corresponds to uev_signal_init — there is no
// separate "add" step since each call both allocates and arms the
// watcher.
func (l *Loop) SignalAdd(sig os.Signal, cb func(os.Signal)) {
	d := l.signals
	d.mu.Lock()
	_, already := d.subs[sig]
	d.subs[sig] = append(d.subs[sig], cb)
	d.mu.Unlock()

	if !already {
		signal.Notify(d.ch, sig)
	}
}

// SignalRemove stops delivering sig to any callback registered on l.
func (l *Loop) SignalRemove(sig os.Signal) {
	d := l.signals
	d.mu.Lock()
	delete(d.subs, sig)
	remaining := make([]os.Signal, 0, len(d.subs))
	for s := range d.subs {
		remaining = append(remaining, s)
	}
	d.mu.Unlock()
	signal.Stop(d.ch)
	if len(remaining) > 0 {
		signal.Notify(d.ch, remaining...)
	}
}

// run is the dispatcher's pump goroutine: it only ever forwards the
// signal onto the owning loop's thread via runAsync, keeping the actual
// callback execution serialized with the rest of the loop's work just
// like stream and timer callbacks.
func (d *signalDispatcher) run(l *Loop) {
	for {
		select {
		case sig := <-d.ch:
			l.runAsync(func() {
				d.mu.Lock()
				cbs := append([]func(os.Signal){}, d.subs[sig]...)
				d.mu.Unlock()
				for _, cb := range cbs {
					cb(sig)
				}
			})
		case <-d.stop:
			return
		}
	}
}

func (d *signalDispatcher) close() {
	signal.Stop(d.ch)
	close(d.stop)
}
