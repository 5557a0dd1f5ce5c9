// FastPoller registers file descriptors for readiness notification using
// platform-native mechanisms (epoll on Linux, kqueue on Darwin, IOCP on
// Windows). RegisterFD, UnregisterFD, ModifyFD, and PollIO are
// implemented per-platform in poller_linux.go/poller_darwin.go/
// poller_windows.go; this file only holds the shared doc comment.
//
// Always call UnregisterFD before closing a file descriptor to prevent
// stale event delivery due to FD recycling.
package eventloop
