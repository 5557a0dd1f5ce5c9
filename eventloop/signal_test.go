//go:build !windows

package eventloop

import (
	"os"
	"syscall"
	"testing"
	"time"
)

func TestSignalAddDeliversOnLoopThread(t *testing.T) {
	g, err := New(Config{NumLoops: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer g.Shutdown()

	got := make(chan os.Signal, 1)
	g.ForCPU(0).SignalAdd(syscall.SIGUSR1, func(sig os.Signal) {
		got <- sig
	})

	p, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatalf("FindProcess: %v", err)
	}
	if err := p.Signal(syscall.SIGUSR1); err != nil {
		t.Fatalf("Signal: %v", err)
	}

	select {
	case sig := <-got:
		if sig != syscall.SIGUSR1 {
			t.Fatalf("sig = %v, want SIGUSR1", sig)
		}
	case <-time.After(time.Second):
		t.Fatal("signal never delivered")
	}
}
