//go:build linux

package futex

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux futex(2) op codes and flags. Not exported by golang.org/x/sys/unix
// as named constants, so mirrored here from the stable kernel UAPI
// (linux/futex.h) — the same "define the op codes locally, call the raw
// syscall number from x/sys/unix" shape the eventloop package uses for
// epoll/eventfd (poller_linux.go, wakeup_linux.go).
const (
	futexWait        = 0
	futexWake        = 1
	futexPrivateFlag = 128
)

type timespec = unix.Timespec

func waitImpl(addr *uint32, expected uint32, timeout time.Duration) bool {
	var ts *timespec
	if timeout > 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexWait|futexPrivateFlag),
		uintptr(expected),
		uintptr(unsafe.Pointer(ts)),
		0, 0,
	)
	// EAGAIN: *addr != expected already (word changed before we blocked).
	// ETIMEDOUT: timeout elapsed. EINTR: spurious wake, treat as a wake.
	return errno != unix.ETIMEDOUT
}

func wakeImpl(addr *uint32, n int) int {
	woken, _, _ := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexWake|futexPrivateFlag),
		uintptr(n),
		0, 0, 0,
	)
	return int(woken)
}
