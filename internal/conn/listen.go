package conn

import (
	"context"
	"fmt"
	"net"
	"time"
)

// ListenTCP listens on the given network/address and returns a net.Listener
// that applies the keepalive timers to accepted TCP connections. An idle of
// zero disables keepalive application.
func ListenTCP(network, addr string, idle, interval time.Duration) (net.Listener, error) {
	lc := net.ListenConfig{}

	ln, err := lc.Listen(context.Background(), network, addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", network, addr, err)
	}

	return &KeepAliveListener{Listener: ln, Idle: idle, Interval: interval}, nil
}

// KeepAliveListener wraps a net.Listener and applies keepalive timers to
// any accepted *net.TCPConn.
type KeepAliveListener struct {
	net.Listener
	Idle     time.Duration
	Interval time.Duration
}

// Accept accepts the next connection and applies the keepalive timers if
// the connection is a *net.TCPConn.
func (l *KeepAliveListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	if l.Idle > 0 {
		_ = ApplyKeepAlive(c, l.Idle, l.Interval)
	}

	return c, nil
}
