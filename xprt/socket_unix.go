//go:build linux || darwin

package xprt

import (
	"net"
	"strconv"

	"golang.org/x/sys/unix"
)

// ListenTCP creates, binds, and listens on a raw non-blocking TCP socket
// for addr ("host:port"), returning its fd. Pair with CreateXprt and the
// TCPServ flag; on_recv for a listening xprt is expected to call
// AcceptTCP in a loop until EAGAIN.
func ListenTCP(addr string) (int, error) {
	sa, err := resolveSockaddr(addr)
	if err != nil {
		return -1, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// AcceptTCP accepts one pending connection on the listening fd, returning
// -1, unix.EAGAIN if none is pending. Callers should loop on this until
// it returns EAGAIN, per spec.md §4.L's on_recv drain contract. Uses
// plain accept(2) plus a separate SetNonblock rather than accept4, since
// accept4 has no Darwin equivalent.
func AcceptTCP(listenFD int) (int, error) {
	connFD, _, err := unix.Accept(listenFD)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(connFD, true); err != nil {
		_ = unix.Close(connFD)
		return -1, err
	}
	return connFD, nil
}

// DialTCP creates a non-blocking socket and begins an asynchronous
// connect to addr, returning its fd immediately (the connect completes
// in the background; a later write-readiness event on the xprt signals
// completion — check SO_ERROR in on_changed/on_send to distinguish
// success from ConnRefused).
func DialTCP(addr string) (int, error) {
	sa, err := resolveSockaddr(addr)
	if err != nil {
		return -1, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}

	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// LocalPort returns the port fd is bound to, useful after ListenTCP with
// a ":0" port to discover the OS-assigned port.
func LocalPort(fd int) (int, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return 0, err
	}
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		return in4.Port, nil
	}
	return 0, &net.AddrError{Err: "unsupported sockaddr family", Addr: ""}
}

// SocketError returns the pending SO_ERROR on fd (0 if none), used after
// a non-blocking connect's write-readiness fires to detect ConnRefused.
func SocketError(fd int) (int, error) {
	return unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
}

func resolveSockaddr(addr string) (unix.Sockaddr, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, err
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	var ip4 [4]byte
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			copy(ip4[:], v4)
			return &unix.SockaddrInet4{Port: port, Addr: ip4}, nil
		}
	}
	return nil, &net.AddrError{Err: "no A record", Addr: host}
}
