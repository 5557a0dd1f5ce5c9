package eventloop

import (
	"os"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestGroupStartsAndShutsDown(t *testing.T) {
	g, err := New(Config{NumLoops: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if g.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", g.Len())
	}
	waitFor(t, time.Second, func() bool { return g.ForCPU(0).state.IsRunning() })
	g.Shutdown()
	for i := 0; i < g.Len(); i++ {
		if got := g.ForCPU(i).State(); got != StateTerminated {
			t.Fatalf("loop %d State() = %v, want Terminated", i, got)
		}
	}
}

func TestForCPUWrapsModulo(t *testing.T) {
	g, err := New(Config{NumLoops: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Shutdown()

	if g.ForCPU(0) != g.ForCPU(2) {
		t.Fatalf("ForCPU(0) and ForCPU(2) should be the same loop")
	}
	if g.ForCPU(1) != g.ForCPU(3) {
		t.Fatalf("ForCPU(1) and ForCPU(3) should be the same loop")
	}
}

func TestTimerAddFires(t *testing.T) {
	g, err := New(Config{NumLoops: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Shutdown()

	fired := make(chan struct{}, 1)
	g.ForCPU(0).TimerAdd(10*time.Millisecond, func() {
		fired <- struct{}{}
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestTimerDeleteSyncPreventsFire(t *testing.T) {
	g, err := New(Config{NumLoops: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Shutdown()

	fired := make(chan struct{}, 1)
	timer := g.ForCPU(0).TimerAdd(50*time.Millisecond, func() {
		fired <- struct{}{}
	})
	g.ForCPU(0).TimerDeleteSync(timer)

	select {
	case <-fired:
		t.Fatal("canceled timer fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTimerModifyReschedules(t *testing.T) {
	g, err := New(Config{NumLoops: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Shutdown()

	var fireTime time.Time
	done := make(chan struct{})
	start := time.Now()
	timer := g.ForCPU(0).TimerAdd(5*time.Millisecond, func() {
		fireTime = time.Now()
		close(done)
	})
	g.ForCPU(0).TimerModify(timer, 60*time.Millisecond)

	select {
	case <-done:
		if fireTime.Sub(start) < 40*time.Millisecond {
			t.Fatalf("timer fired too early: %s", fireTime.Sub(start))
		}
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestStreamAddDeliversReadEvent(t *testing.T) {
	g, err := New(Config{NumLoops: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Shutdown()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer w.Close()
	defer r.Close()

	got := make(chan IOEvents, 1)
	_, err = g.ForCPU(0).StreamAdd(int(r.Fd()), EventRead, func(ev IOEvents) {
		got <- ev
	})
	if err != nil {
		t.Fatalf("StreamAdd: %v", err)
	}

	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case ev := <-got:
		if ev&EventRead == 0 {
			t.Fatalf("event = %v, want EventRead set", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("stream callback never fired")
	}
}

func TestStreamDeleteSyncStopsDelivery(t *testing.T) {
	g, err := New(Config{NumLoops: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Shutdown()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	defer w.Close()
	defer r.Close()

	calls := make(chan struct{}, 8)
	stream, err := g.ForCPU(0).StreamAdd(int(r.Fd()), EventRead, func(IOEvents) {
		calls <- struct{}{}
	})
	if err != nil {
		t.Fatalf("StreamAdd: %v", err)
	}

	if _, err := w.Write([]byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("first event never delivered")
	}

	stream.DeleteSync()

	// Drain the pipe so a level-triggered fd isn't perpetually ready,
	// then write again: no further callback should arrive.
	buf := make([]byte, 16)
	_, _ = r.Read(buf)
	if _, err := w.Write([]byte("y")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case <-calls:
		t.Fatal("callback fired after DeleteSync")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestAsyncWakeCoalescesBurstEmits(t *testing.T) {
	g, err := New(Config{NumLoops: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Shutdown()

	l := g.ForCPU(0)
	n := 0
	done := make(chan struct{})
	l.runAsync(func() { n++; close(done) })
	for i := 0; i < 10; i++ {
		l.wake.Emit()
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queued async fn never ran")
	}
	if n != 1 {
		t.Fatalf("n = %d, want 1", n)
	}
}

func TestCallRCUDefersPastGracePeriod(t *testing.T) {
	g, err := New(Config{NumLoops: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Shutdown()

	start := time.Now()
	done := make(chan time.Time, 1)
	g.ForCPU(0).CallRCU(func() { done <- time.Now() })

	select {
	case fired := <-done:
		if fired.Sub(start) < g.ForCPU(0).pollInterval*defaultRCUGracePeriod {
			t.Fatalf("CallRCU fired too early: %s", fired.Sub(start))
		}
	case <-time.After(time.Second):
		t.Fatal("CallRCU callback never fired")
	}
}

func TestStreamAddRejectsInvalidFD(t *testing.T) {
	g, err := New(Config{NumLoops: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Shutdown()

	if _, err := g.ForCPU(0).StreamAdd(-1, EventRead, func(IOEvents) {}); err == nil {
		t.Fatal("StreamAdd(-1, ...) should have failed")
	}
}
