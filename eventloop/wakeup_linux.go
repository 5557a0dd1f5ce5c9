//go:build linux

//lint:file-ignore U1000 Platform-specific stub functions (required for Windows/Darwin compatibility)

package eventloop

import (
	"golang.org/x/sys/unix"
)

const (
	EFD_CLOEXEC  = unix.EFD_CLOEXEC
	EFD_NONBLOCK = unix.EFD_NONBLOCK
)

// createWakeFd creates an eventfd for wake-up notifications (Linux).
// Returns the single eventfd as both read and write ends.
func createWakeFd(initval uint, flags int) (int, int, error) {
	fd, err := unix.Eventfd(initval, flags)
	return fd, fd, err
}

// closeWakeFd closes the wake eventfd on Linux.
func closeWakeFd(wakeFd, wakeWriteFd int) error {
	if wakeFd >= 0 {
		_ = unix.Close(wakeFd)
	}
	return nil
}

// writeWake posts one wake to an eventfd. Eventfd counters saturate and
// coalesce additions on their own, but asyncWake still gates the write
// behind its own armed flag so the poller only sees one EventRead per
// batch of Emit calls.
func writeWake(fd int) error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(fd, buf[:])
	return err
}

// drainWake reads and discards the eventfd counter, rearming it for the
// next wake.
func drainWake(fd int) error {
	var buf [8]byte
	_, err := unix.Read(fd, buf[:])
	return err
}
