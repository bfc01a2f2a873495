package dialer

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	txsocks5 "github.com/txthinking/socks5"
)

// SOCKS5ProxyDialer tunnels outbound TCP connections through a SOCKS5 proxy
// using the CONNECT command, with optional username/password authentication.
type SOCKS5ProxyDialer struct {
	cfg       Config
	proxyAddr string
	auth      Auth
	direct    Dialer
}

func NewSOCKS5ProxyDialer(cfg Config, proxyAddr string, auth Auth) Dialer {
	return &SOCKS5ProxyDialer{
		cfg:       cfg,
		proxyAddr: proxyAddr,
		auth:      auth,
		direct:    NewDirectDialer(cfg),
	}
}

// ProxyAddr returns the proxy host:port.
func (f *SOCKS5ProxyDialer) ProxyAddr() string {
	return f.proxyAddr
}

// DialContext connects to the proxy, negotiates, and issues CONNECT for
// address. Negotiation is performed synchronously before returning.
func (f *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp" {
		return nil, fmt.Errorf("socks5 proxy dial %s %s: unsupported network", network, address)
	}

	c, err := f.direct.DialContext(ctx, network, f.proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy: %w", err)
	}

	if f.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Now().Add(f.cfg.NegotiationTimeout))
	}

	if err := clientNegotiate(c, f.auth); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("socks5 proxy %s: %w", address, err)
	}
	if err := clientConnect(c, address); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("socks5 proxy %s: %w", address, err)
	}

	if f.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Time{})
	}
	return c, nil
}

func clientNegotiate(conn net.Conn, auth Auth) error {
	methods := []byte{txsocks5.MethodNone}
	if auth != (Auth{}) {
		methods = append(methods, txsocks5.MethodUsernamePassword)
	}

	if _, err := txsocks5.NewNegotiationRequest(methods).WriteTo(conn); err != nil {
		return fmt.Errorf("write negotiation: %w", err)
	}

	neg, err := txsocks5.NewNegotiationReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read negotiation: %w", err)
	}

	switch neg.Method {
	case txsocks5.MethodNone:
		return nil
	case txsocks5.MethodUsernamePassword:
		if auth == (Auth{}) {
			return fmt.Errorf("server requires username/password")
		}

		if _, err := txsocks5.NewUserPassNegotiationRequest([]byte(auth.Username), []byte(auth.Password)).WriteTo(conn); err != nil {
			return fmt.Errorf("write userpass: %w", err)
		}
		rep, err := txsocks5.NewUserPassNegotiationReplyFrom(conn)
		if err != nil {
			return fmt.Errorf("read userpass: %w", err)
		}
		if rep.Status != txsocks5.UserPassStatusSuccess {
			return fmt.Errorf("auth failed")
		}
		return nil
	default:
		return fmt.Errorf("unsupported negotiation method: %d", neg.Method)
	}
}

func clientConnect(conn net.Conn, address string) error {
	host, port, err := HostPortPair(address)
	if err != nil {
		return err
	}

	var atyp byte
	var dstAddr []byte
	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			atyp, dstAddr = txsocks5.ATYPIPv4, ip4
		} else {
			atyp, dstAddr = txsocks5.ATYPIPv6, ip.To16()
		}
	} else {
		atyp, dstAddr = txsocks5.ATYPDomain, []byte(host)
	}

	var dstPort [2]byte
	binary.BigEndian.PutUint16(dstPort[:], port)

	if _, err := txsocks5.NewRequest(txsocks5.CmdConnect, atyp, dstAddr, dstPort[:]).WriteTo(conn); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	rep, err := txsocks5.NewReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if rep.Rep != txsocks5.RepSuccess {
		return fmt.Errorf("connect failed: reply %#02x", rep.Rep)
	}
	return nil
}
