package ring

import (
	"sync"
	"testing"
)

func TestSPSCSaturation(t *testing.T) {
	r := New[int](Config{Capacity: 128, SingleProducer: true, SingleConsumer: true, Mode: Fixed})

	items := make([]int, 128)
	for i := range items {
		items[i] = i
	}
	if n := r.EnqueueBulk(items); n != 128 {
		t.Fatalf("enqueued %d, want 128", n)
	}
	if n := r.Enqueue(999); n {
		t.Fatal("expected enqueue to fail when full")
	}

	out := make([]int, 128)
	if n := r.DequeueBulk(out); n != 128 {
		t.Fatalf("dequeued %d, want 128", n)
	}
	for i, v := range out {
		if v != i {
			t.Fatalf("out[%d] = %d, want %d", i, v, i)
		}
	}
	if _, ok := r.Dequeue(); ok {
		t.Fatal("expected dequeue to fail when empty")
	}
}

func TestBurstMode(t *testing.T) {
	r := New[int](Config{Capacity: 8, SingleProducer: true, SingleConsumer: true, Mode: Burst})
	items := make([]int, 10)
	if n := r.EnqueueBulk(items); n != 8 {
		t.Fatalf("enqueued %d, want 8 (capped to capacity)", n)
	}
	out := make([]int, 10)
	if n := r.DequeueBulk(out); n != 8 {
		t.Fatalf("dequeued %d, want 8", n)
	}
}

func TestMPMCRoundTrip(t *testing.T) {
	const capacity = 1024
	const producers = 8
	const perProducer = 2000
	const total = producers * perProducer

	r := New[int](Config{Capacity: capacity, Mode: Fixed})

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; {
				if r.Enqueue(base + i) {
					i++
				}
			}
		}(p * perProducer)
	}

	received := make([]bool, total)
	var recvWg sync.WaitGroup
	recvWg.Add(1)
	go func() {
		defer recvWg.Done()
		seen := 0
		for seen < total {
			if v, ok := r.Dequeue(); ok {
				if received[v] {
					t.Errorf("duplicate item %d", v)
				}
				received[v] = true
				seen++
			}
		}
	}()

	wg.Wait()
	recvWg.Wait()

	for i, ok := range received {
		if !ok {
			t.Fatalf("item %d never received", i)
		}
	}
}
