// Package proxyproto encodes PROXY protocol v1 and v2 preambles.
//
// The header announces a connection's remote address as the source and its
// local address as the destination, so a proxy-aware load balancer behind
// the tunnel can recover the original client address. Only TCP over IPv4
// or IPv6 is supported; UNIX-domain addresses are not.
package proxyproto

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/sjtrny/rathole/internal/logger"
)

// ErrUnsupportedVersion is returned for any version selector other than
// "v1" or "v2". No bytes are produced.
var ErrUnsupportedVersion = errors.New("unsupported proxy protocol version")

// v2Signature prefixes every v2 header.
var v2Signature = []byte{0x0D, 0x0A, 0x0D, 0x0A, 0x00, 0x0D, 0x0A, 0x51, 0x55, 0x49, 0x54, 0x0A}

// Header builds the PROXY protocol preamble for c. It is pure: the same
// connection addresses and version always yield the same bytes.
func Header(c net.Conn, version string) ([]byte, error) {
	local, lok := c.LocalAddr().(*net.TCPAddr)
	remote, rok := c.RemoteAddr().(*net.TCPAddr)
	if !lok || !rok {
		return nil, fmt.Errorf("proxy protocol: not a TCP connection (%T)", c.LocalAddr())
	}

	switch version {
	case "v1":
		return headerV1(local, remote), nil
	case "v2":
		return headerV2(local, remote)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVersion, version)
	}
}

// WriteHeader encodes the version preamble for c and writes it on c, to be
// followed by payload bytes.
func WriteHeader(c net.Conn, version string) error {
	h, err := Header(c, version)
	if err != nil {
		return err
	}

	logger.Trace().Str("version", version).Hex("header", h).Msg("sending proxy protocol header")

	if _, err := c.Write(h); err != nil {
		return fmt.Errorf("write proxy protocol header: %w", err)
	}
	return nil
}

// headerV1 renders the human-readable form. The address family token
// follows the local side of the connection.
func headerV1(local, remote *net.TCPAddr) []byte {
	proto := "TCP6"
	if local.IP.To4() != nil {
		proto = "TCP4"
	}

	return fmt.Appendf(nil, "PROXY %s %s %s %d %d\r\n",
		proto, remote.IP, local.IP, remote.Port, local.Port)
}

// headerV2 renders the binary form: signature, version/command 0x21,
// family/transport byte, big-endian address block length, source address,
// destination address, source port, destination port.
func headerV2(local, remote *net.TCPAddr) ([]byte, error) {
	if v4 := local.IP.To4(); v4 != nil {
		src := remote.IP.To4()
		if src == nil {
			return nil, fmt.Errorf("proxy protocol: address family mismatch: remote %s, local %s", remote.IP, local.IP)
		}

		buf := make([]byte, 0, 28)
		buf = append(buf, v2Signature...)
		buf = append(buf, 0x21)       // version 2, PROXY command
		buf = append(buf, 0x11)       // AF_INET, STREAM
		buf = append(buf, 0x00, 0x0C) // 12-byte address block
		buf = append(buf, src...)
		buf = append(buf, v4...)
		buf = binary.BigEndian.AppendUint16(buf, uint16(remote.Port))
		buf = binary.BigEndian.AppendUint16(buf, uint16(local.Port))
		return buf, nil
	}

	src := remote.IP.To16()
	if src == nil {
		return nil, fmt.Errorf("proxy protocol: address family mismatch: remote %s, local %s", remote.IP, local.IP)
	}

	buf := make([]byte, 0, 52)
	buf = append(buf, v2Signature...)
	buf = append(buf, 0x21) // version 2, PROXY command
	// AF_INET6 in the high nibble, STREAM in the low; the value happens to
	// equal the version/command byte.
	buf = append(buf, 0x21)
	buf = append(buf, 0x00, 0x24) // 36-byte address block
	buf = append(buf, src...)
	buf = append(buf, local.IP.To16()...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(remote.Port))
	buf = binary.BigEndian.AppendUint16(buf, uint16(local.Port))
	return buf, nil
}
