package conn

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/sjtrny/rathole/internal/testutil"
)

func TestApplyKeepAlive(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ln := testutil.StartEchoTCPServer(t, ctx)
	defer ln.Close()

	d := net.Dialer{Timeout: 2 * time.Second}
	c, err := d.DialContext(ctx, "tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := ApplyKeepAlive(c, 30*time.Second, 10*time.Second); err != nil {
		t.Fatal(err)
	}

	// Idempotent: reapplying succeeds.
	if err := ApplyKeepAlive(c, 45*time.Second, 15*time.Second); err != nil {
		t.Fatal(err)
	}
}

func TestApplyKeepAliveNonTCP(t *testing.T) {
	t.Parallel()

	left, right := net.Pipe()
	defer left.Close()
	defer right.Close()

	err := ApplyKeepAlive(left, 30*time.Second, 10*time.Second)
	if !errors.Is(err, ErrKeepAliveUnsupported) {
		t.Fatalf("expected ErrKeepAliveUnsupported, got %v", err)
	}
}

func TestKeepAliveListener(t *testing.T) {
	t.Parallel()

	ln, err := ListenTCP("tcp", "127.0.0.1:0", 30*time.Second, 10*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		accepted <- c
	}()

	d := net.Dialer{Timeout: 2 * time.Second}
	c, err := d.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	select {
	case sc := <-accepted:
		_ = sc.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("accept timed out")
	}
}
