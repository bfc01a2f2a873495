package dialer

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPProxyDialer tunnels outbound TCP connections through an HTTP proxy
// using the HTTP CONNECT method.
type HTTPProxyDialer struct {
	cfg       Config
	proxyAddr string
	auth      string
	direct    Dialer
}

// NewHTTPProxyDialer constructs an HTTP CONNECT dialer for the proxy at
// proxyAddr. If credentials are present, Proxy-Authorization is set using
// HTTP Basic auth; otherwise the header is omitted entirely.
func NewHTTPProxyDialer(cfg Config, proxyAddr string, auth Auth) Dialer {
	basic := ""
	if auth != (Auth{}) {
		basic = "Basic " + base64.StdEncoding.EncodeToString([]byte(auth.Username+":"+auth.Password))
	}

	return &HTTPProxyDialer{
		cfg:       cfg,
		proxyAddr: proxyAddr,
		auth:      basic,
		direct:    NewDirectDialer(cfg),
	}
}

// ProxyAddr returns the proxy host:port.
func (f *HTTPProxyDialer) ProxyAddr() string {
	return f.proxyAddr
}

// DialContext establishes a TCP connection to address via the proxy.
// CONNECT negotiation is performed synchronously before returning. If
// NegotiationTimeout is set, a deadline is applied during negotiation and
// cleared before returning.
func (f *HTTPProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "tcp" {
		return nil, fmt.Errorf("http proxy dial %s %s: unsupported network", network, address)
	}

	host, port, err := HostPortPair(address)
	if err != nil {
		return nil, fmt.Errorf("http proxy dial %s: %w", address, err)
	}
	target := net.JoinHostPort(host, strconv.Itoa(int(port)))

	c, err := f.direct.DialContext(ctx, network, f.proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("http proxy: %w", err)
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: target},
		Host:   target,
		Header: make(http.Header),
	}
	if f.auth != "" {
		req.Header.Set("Proxy-Authorization", f.auth)
	}

	if f.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Now().Add(f.cfg.NegotiationTimeout))
	}

	if err := req.Write(c); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("http proxy connect write: %w", err)
	}

	br := bufio.NewReader(c)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("http proxy connect read: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		_ = c.Close()
		return nil, fmt.Errorf("http proxy connect failed: %s", resp.Status)
	}

	if f.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Time{})
	}
	return c, nil
}
