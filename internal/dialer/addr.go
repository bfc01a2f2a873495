package dialer

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// Addr is a destination endpoint as host:port text, optionally carrying a
// cached resolution. The textual form is authoritative for proxy handshakes
// so the proxy performs its own name resolution; the cached form is only a
// shortcut for direct dials. Addr is immutable after creation.
type Addr struct {
	Text     string
	Resolved netip.AddrPort
}

// NewAddr returns an unresolved Addr for the given host:port text.
func NewAddr(text string) Addr {
	return Addr{Text: text}
}

// NewResolvedAddr returns an Addr carrying both the textual form and a
// resolved socket address.
func NewResolvedAddr(text string, resolved netip.AddrPort) Addr {
	return Addr{Text: text, Resolved: resolved}
}

// DialAddress returns the address to hand to a direct dialer: the cached
// resolution when present, otherwise the text.
func (a Addr) DialAddress() string {
	if a.Resolved.IsValid() {
		return a.Resolved.String()
	}
	return a.Text
}

func (a Addr) String() string { return a.Text }

// Resolve looks up address and returns the first candidate socket address.
// Each call re-resolves; callers own any caching policy.
func Resolve(ctx context.Context, address string) (netip.AddrPort, error) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("resolve %s: %w", address, err)
	}

	port, err := net.DefaultResolver.LookupPort(ctx, "tcp", portStr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("resolve %s: %w", address, err)
	}

	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("resolve %s: %w", address, err)
	}
	if len(ips) == 0 {
		return netip.AddrPort{}, fmt.Errorf("resolve %s: no addresses found", address)
	}

	return netip.AddrPortFrom(ips[0].Unmap(), uint16(port)), nil
}

// ConnectUDP resolves address, binds an ephemeral local UDP socket of the
// matching address family, and connects it to the remote so plain
// Read/Write calls are implicitly addressed.
func ConnectUDP(ctx context.Context, address string) (*net.UDPConn, error) {
	ap, err := Resolve(ctx, address)
	if err != nil {
		return nil, err
	}

	// DialUDP with a nil local address binds 0.0.0.0:0 or [::]:0 to match
	// the network.
	network := "udp4"
	if ap.Addr().Is6() {
		network = "udp6"
	}

	c, err := net.DialUDP(network, nil, net.UDPAddrFromAddrPort(ap))
	if err != nil {
		return nil, fmt.Errorf("udp connect %s: %w", address, err)
	}
	return c, nil
}

// HostPortPair splits s into host and numeric port at the last colon.
// Brackets around an IPv6 host are stripped. A bracket-less IPv6 literal
// like "2001:db8::1:443" splits at its last colon, yielding
// ("2001:db8::1", 443); there is no way to disambiguate that form.
func HostPortPair(s string) (string, uint16, error) {
	i := strings.LastIndexByte(s, ':')
	if i < 0 {
		return "", 0, fmt.Errorf("address %s: missing port", s)
	}

	port, err := strconv.ParseUint(s[i+1:], 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("address %s: invalid port: %w", s, err)
	}

	host := s[:i]
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}

	return host, uint16(port), nil
}
