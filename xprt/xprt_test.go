//go:build linux || darwin

package xprt

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rancho0755/skp-go/eventloop"
)

func discardLogger() zerolog.Logger { return zerolog.Nop() }

func TestEchoClientServer(t *testing.T) {
	g, err := eventloop.New(eventloop.Config{NumLoops: 1})
	if err != nil {
		t.Fatalf("eventloop.New: %v", err)
	}
	defer g.Shutdown()
	loop := g.ForCPU(0)

	srv := NewServer(nil, discardLogger())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	listenFD, err := ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	port, err := LocalPort(listenFD)
	if err != nil {
		t.Fatalf("LocalPort: %v", err)
	}

	echoed := make(chan string, 1)

	var listener *Xprt
	listener, err = CreateXprt(loop, listenFD, TCPServ|RdReady, Handlers{
		OnRecv: func(x *Xprt) {
			for {
				connFD, err := AcceptTCP(x.FD())
				if err != nil {
					return
				}
				conn, err := CreateXprt(loop, connFD, RdReady, Handlers{
					OnRecv: func(c *Xprt) {
						buf := make([]byte, 256)
						for {
							n, err := c.Read(buf)
							if err != nil {
								return
							}
							if n == 0 {
								return
							}
							echoed <- string(buf[:n])
							_, _ = c.Write(buf[:n])
						}
					},
				}, discardLogger())
				if err != nil {
					continue
				}
				_ = srv.AddXprt(conn)
				XprtPut(conn) // server now holds the tracking reference
			}
		},
	}, discardLogger())
	if err != nil {
		t.Fatalf("CreateXprt(listener): %v", err)
	}
	if err := srv.AddXprt(listener); err != nil {
		t.Fatalf("AddXprt(listener): %v", err)
	}
	XprtPut(listener)

	clientFD, err := DialTCP(fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		t.Fatalf("DialTCP: %v", err)
	}

	received := make(chan string, 1)
	client, err := CreateXprt(loop, clientFD, RdReady|WrReady, Handlers{
		OnSend: func(x *Xprt) {
			_, _ = x.Write([]byte("ping"))
			x.DisableWrite()
		},
		OnRecv: func(x *Xprt) {
			buf := make([]byte, 256)
			n, err := x.Read(buf)
			if err != nil || n == 0 {
				return
			}
			received <- string(buf[:n])
		},
	}, discardLogger())
	if err != nil {
		t.Fatalf("CreateXprt(client): %v", err)
	}
	defer XprtPut(client)

	select {
	case msg := <-echoed:
		if msg != "ping" {
			t.Fatalf("server received %q, want ping", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server never received ping")
	}

	select {
	case msg := <-received:
		if msg != "ping" {
			t.Fatalf("client received %q, want ping", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client never received echo")
	}

	srv.DestroyServer()
	if srv.State() != Destroyed {
		t.Fatalf("State() = %v, want Destroyed", srv.State())
	}
}

func TestServerLifecycleStates(t *testing.T) {
	destroyed := make(chan struct{})
	srv := NewServer(func() { close(destroyed) }, discardLogger())

	if srv.State() != Initing {
		t.Fatalf("initial State() = %v, want Initing", srv.State())
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if srv.State() != Running {
		t.Fatalf("State() after Start = %v, want Running", srv.State())
	}

	done := make(chan struct{})
	go func() {
		srv.Loop()
		close(done)
	}()

	srv.Stop()
	srv.DestroyServer()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Loop never returned")
	}
	select {
	case <-destroyed:
	case <-time.After(time.Second):
		t.Fatal("destructor never ran")
	}
	if srv.State() != Destroyed {
		t.Fatalf("State() = %v, want Destroyed", srv.State())
	}
}

func TestXprtRefcounting(t *testing.T) {
	g, err := eventloop.New(eventloop.Config{NumLoops: 1})
	if err != nil {
		t.Fatalf("eventloop.New: %v", err)
	}
	defer g.Shutdown()

	fd, err := ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}

	shutdownCalls := 0
	x, err := CreateXprt(g.ForCPU(0), fd, TCPServ, Handlers{
		OnShutdown: func(*Xprt) { shutdownCalls++ },
	}, discardLogger())
	if err != nil {
		t.Fatalf("CreateXprt: %v", err)
	}

	XprtGet(x)
	XprtPut(x)
	if shutdownCalls != 0 {
		t.Fatalf("shutdownCalls = %d after first Put, want 0", shutdownCalls)
	}
	XprtPut(x)
	if shutdownCalls != 1 {
		t.Fatalf("shutdownCalls = %d after final Put, want 1", shutdownCalls)
	}
}
