package kthread

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestCreateStartsPaused(t *testing.T) {
	var ran atomic.Bool
	th := Create(func(t *Thread) { ran.Store(true) }, nil)
	defer th.Stop()

	time.Sleep(20 * time.Millisecond)
	if ran.Load() {
		t.Fatal("fn ran before Wakeup")
	}
	if th.State()&StateRunning != 0 {
		t.Fatal("thread reports RUNNING before Wakeup")
	}
}

func TestWakeupRunsFn(t *testing.T) {
	var ran atomic.Bool
	done := make(chan struct{})
	th := Create(func(t *Thread) {
		ran.Store(true)
		close(done)
	}, nil)

	th.Wakeup()
	// fn is trivial and may already have returned (RUNNING cleared,
	// STOPPED set) by the time Wakeup comes back.
	if th.State()&(StateRunning|StateStopping|StateStopped) == 0 {
		t.Fatal("Wakeup returned before the thread reached RUNNING or STOPPING")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fn never ran")
	}
	if !ran.Load() {
		t.Fatal("fn did not run")
	}
	th.Join()
	if th.State()&StateStopped == 0 {
		t.Fatal("expected STOPPED after fn returns")
	}
}

func TestRunCreatesAndWakes(t *testing.T) {
	result := make(chan int, 1)
	th := Run(func(t *Thread) { result <- 42 }, nil)
	select {
	case v := <-result:
		if v != 42 {
			t.Fatalf("got %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Run's fn never executed")
	}
	th.Join()
}

func TestStopBeforeWakeupNeverRunsFn(t *testing.T) {
	var ran atomic.Bool
	th := Create(func(t *Thread) { ran.Store(true) }, nil)
	th.Stop()
	if ran.Load() {
		t.Fatal("fn ran despite Stop before Wakeup")
	}
	if th.State()&StateStopped == 0 {
		t.Fatal("expected STOPPED after Stop")
	}
}

func TestStopWaitsForRunningFn(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	th := Run(func(t *Thread) {
		close(started)
		<-release
	}, nil)

	<-started
	stopped := make(chan struct{})
	go func() {
		th.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the running fn exited")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop never returned after fn exited")
	}
}

func TestKillNeverRanIsFast(t *testing.T) {
	th := Create(func(t *Thread) {}, nil)
	done := make(chan struct{})
	go func() {
		th.Kill()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Kill on a never-run thread did not return promptly")
	}
}

func TestDetachSetsState(t *testing.T) {
	th := Run(func(t *Thread) {}, nil)
	th.Detach()
	if th.State()&StateDetached == 0 {
		t.Fatal("expected DETACHED after Detach")
	}
	th.Join()
}

func TestRegisterCleanupRunsOnExit(t *testing.T) {
	var order []int
	done := make(chan struct{})
	th := Run(func(t *Thread) {
		t.RegisterCleanup(func(data any) { order = append(order, data.(int)) }, 1)
		t.RegisterCleanup(func(data any) { order = append(order, data.(int)) }, 2)
	}, nil)
	go func() {
		th.Join()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("thread never exited")
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("cleanups ran in order %v, want [2 1] (last-registered-first)", order)
	}
}

func TestRegisterCleanupInFnSkippedWhenNeverStarted(t *testing.T) {
	var cleaned atomic.Bool
	th := Create(func(t *Thread) {
		t.RegisterCleanup(func(any) { cleaned.Store(true) }, nil)
	}, nil)
	th.Stop()
	if cleaned.Load() {
		t.Fatal("fn body never ran, so its cleanup registration should not exist")
	}
}

func TestMainThreadCleanups(t *testing.T) {
	m := MainThread()
	if m.State()&StateMain == 0 {
		t.Fatal("MainThread should report StateMain")
	}
	var ran atomic.Bool
	m.RegisterCleanup(func(any) { ran.Store(true) }, nil)
	RunMainCleanups()
	if !ran.Load() {
		t.Fatal("RunMainCleanups did not invoke the registered cleanup")
	}
}
