// Package futex implements the kernel-primitive wait of spec.md §4.B: a
// pair of primitives, Wait and Wake, that every blocking synchronization
// primitive in the runtime (mutex, rwsem, wait queue, completion, bit-wait)
// is built on.
//
// On Linux, Wait/Wake are backed by the real futex(2) syscall with
// FUTEX_PRIVATE_FLAG (futex_linux.go). Everywhere else, a portable shim
// (futex_shim.go) provides the same contract using a fixed-size hash table
// of condition variables keyed by address, exactly as spec.md §4.B
// describes as the fallback.
//
// A spurious wake (Wait returning true though addr never actually changed)
// is always permitted — callers must recheck their condition in a loop.
// A spurious no-wake is not permitted.
package futex

import "time"

// Wait blocks until *addr no longer equals expected, a matching Wake
// arrives, or timeout elapses (timeout <= 0 means wait forever). It returns
// true if the word changed or a wake was observed, false on timeout.
func Wait(addr *uint32, expected uint32, timeout time.Duration) bool {
	return waitImpl(addr, expected, timeout)
}

// Wake wakes up to n waiters blocked on addr, and returns the number woken
// (best effort — on the shim backend this is an estimate).
func Wake(addr *uint32, n int) int {
	return wakeImpl(addr, n)
}
