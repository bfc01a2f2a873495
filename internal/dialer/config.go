package dialer

import (
	"time"
)

type Config struct {
	// DialTimeout bounds DNS lookup plus TCP connect for each attempt.
	DialTimeout time.Duration

	// NegotiationTimeout bounds the proxy handshake (SOCKS5 negotiation or
	// HTTP CONNECT) after the proxy connection is up.
	NegotiationTimeout time.Duration
}
