package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Dialer mirrors the net.Dialer interface.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// ErrUnsupportedScheme is returned by New for proxy URL schemes it does not
// speak. No socket I/O is attempted for such URLs.
var ErrUnsupportedScheme = errors.New("unsupported proxy scheme")

// Auth carries optional proxy credentials. The zero value means no
// authentication.
type Auth struct {
	Username string
	Password string
}

// New parses proxy and constructs the appropriate outbound Dialer.
//
// Supported forms:
//   - "" or direct://
//   - socks5://[user:pass@]host:port
//   - http://[user:pass@]host:port
//
// A default port is applied if the URL host is missing one. Any other
// scheme returns an error wrapping ErrUnsupportedScheme.
func New(cfg Config, proxy string) (Dialer, error) {
	if proxy == "" {
		return NewDirectDialer(cfg), nil
	}

	u, err := url.Parse(proxy)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}

	u.Scheme = strings.ToLower(u.Scheme)

	if u.Path != "" && u.Path != "/" {
		return nil, errors.New("invalid proxy url: path should be empty")
	}

	switch u.Scheme {
	case "":
		return nil, errors.New("invalid proxy url: missing scheme")
	case "direct":
		return NewDirectDialer(cfg), nil
	case "socks5", "http":
		host := u.Hostname()
		if host == "" {
			return nil, errors.New("invalid proxy url: missing host")
		}
		if u.Port() == "" {
			u.Host = net.JoinHostPort(host, defaultPortForScheme(u.Scheme))
		}

		// Credentials exist when a username is given or a password is
		// present, even an empty one.
		var auth Auth
		if u.User != nil {
			user := u.User.Username()
			pass, hasPass := u.User.Password()
			if user != "" || hasPass {
				auth = Auth{Username: user, Password: pass}
			}
		}

		if u.Scheme == "socks5" {
			return NewSOCKS5ProxyDialer(cfg, u.Host, auth), nil
		}
		return NewHTTPProxyDialer(cfg, u.Host, auth), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// DialEndpoint dials addr through d. A direct dialer may take addr's cached
// resolution; proxy dialers always receive the textual form so the target
// hostname survives into the handshake.
func DialEndpoint(ctx context.Context, d Dialer, addr Addr) (net.Conn, error) {
	if _, ok := d.(*directDialer); ok {
		return d.DialContext(ctx, "tcp", addr.DialAddress())
	}
	return d.DialContext(ctx, "tcp", addr.Text)
}

func defaultPortForScheme(scheme string) string {
	switch scheme {
	case "http":
		return "8080"
	case "socks5":
		return "1080"
	default:
		return ""
	}
}
