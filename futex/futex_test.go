package futex

import (
	"sync"
	"testing"
	"time"
)

func TestWaitTimeout(t *testing.T) {
	var word uint32
	start := time.Now()
	woken := Wait(&word, 0, 20*time.Millisecond)
	if woken {
		t.Fatal("expected timeout, got woken")
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Fatalf("returned too early: %v", elapsed)
	}
}

func TestWaitWake(t *testing.T) {
	var word uint32
	var wg sync.WaitGroup
	wg.Add(1)
	woke := make(chan bool, 1)
	go func() {
		defer wg.Done()
		woke <- Wait(&word, 0, time.Second)
	}()

	// give the waiter time to block before waking it.
	time.Sleep(20 * time.Millisecond)
	word = 1
	Wake(&word, 1)
	wg.Wait()

	select {
	case v := <-woke:
		if !v {
			t.Fatal("expected Wait to report a wake, got timeout")
		}
	default:
		t.Fatal("expected a result on woke channel")
	}
}

func TestWaitImmediateMismatch(t *testing.T) {
	var word uint32 = 5
	if !Wait(&word, 0, time.Second) {
		t.Fatal("expected immediate return when expected does not match current value")
	}
}
