// Package eventloop implements component K: a set of CPU-sharded event
// loops, each owned by a dedicated kthread.Thread, per spec.md §4.K. Each
// Loop multiplexes stream (fd) readiness, a timer min-heap, per-loop
// signal delivery, an idempotent async wakeup, and a coarse RCU grace
// period over one OS readiness multiplexer (epoll on Linux, kqueue on
// Darwin).
//
// # Topology
//
// New builds one Loop per runtime.NumCPU() (or Config.NumLoops), each
// running its own thread. Callers route work to a specific loop
// (ForCPU) or let a Transport layer (component L) pick one.
//
// # Platform support
//
// poller_linux.go/poller_darwin.go/poller_windows.go provide the
// FastPoller readiness multiplexer; wakeup_linux.go/wakeup_darwin.go
// provide the eventfd/self-pipe primitives the async wakeup
// (asyncwake_unix.go) registers with it. Non-Unix platforms fall back
// to a bounded poll timeout instead of a registered wake fd
// (asyncwake_other.go) — see DESIGN.md for the tradeoff.
package eventloop
