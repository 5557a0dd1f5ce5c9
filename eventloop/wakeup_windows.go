//go:build windows

//lint:file-ignore U1000 Platform-specific stub functions (required for cross-platform compilation symmetry)

package eventloop

// EFD_CLOEXEC and EFD_NONBLOCK are Unix eventfd flags, unused on Windows
// but defined for cross-platform compilation symmetry with createWakeFd's
// call sites.
const (
	EFD_CLOEXEC  = 0
	EFD_NONBLOCK = 0
)

// createWakeFd has no real Windows analogue: IOCP wakes a blocked
// GetQueuedCompletionStatus via PostQueuedCompletionStatus on the IOCP
// handle itself, not a pipe or eventfd. It returns -1, -1; the asyncWake
// used on this platform (asyncwake_other.go) registers no wake fd and
// relies on an atomic flag instead.
func createWakeFd(initval uint, flags int) (int, int, error) {
	return -1, -1, nil
}

// closeWakeFd is a no-op on Windows: createWakeFd never allocates fds.
func closeWakeFd(wakeFd, wakeWriteFd int) error {
	return nil
}
