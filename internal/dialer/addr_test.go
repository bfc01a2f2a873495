package dialer

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/sjtrny/rathole/internal/testutil"
)

func TestHostPortPair(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in       string
		wantHost string
		wantPort uint16
		wantErr  bool
	}{
		{in: "example.com:443", wantHost: "example.com", wantPort: 443},
		{in: "127.0.0.1:8080", wantHost: "127.0.0.1", wantPort: 8080},
		{in: "[2001:db8::1]:443", wantHost: "2001:db8::1", wantPort: 443},
		// Bracket-less IPv6 splits at the last colon; the final group is
		// taken as the port.
		{in: "2001:db8::1:443", wantHost: "2001:db8::1", wantPort: 443},
		{in: "example.com", wantErr: true},
		{in: "example.com:http", wantErr: true},
		{in: "example.com:70000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			host, port, err := HostPortPair(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if host != tt.wantHost || port != tt.wantPort {
				t.Fatalf("got (%q, %d) want (%q, %d)", host, port, tt.wantHost, tt.wantPort)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ap, err := Resolve(ctx, "localhost:80")
	if err != nil {
		t.Fatal(err)
	}
	if !ap.Addr().IsLoopback() {
		t.Fatalf("expected loopback, got %s", ap.Addr())
	}
	if ap.Port() != 80 {
		t.Fatalf("expected port 80, got %d", ap.Port())
	}
}

func TestResolveErrors(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, in := range []string{"localhost", "host.invalid:80"} {
		if _, err := Resolve(ctx, in); err == nil {
			t.Fatalf("Resolve(%q): expected error", in)
		}
	}
}

func TestAddrDialAddress(t *testing.T) {
	t.Parallel()

	a := NewAddr("example.com:443")
	if got := a.DialAddress(); got != "example.com:443" {
		t.Fatalf("got %q", got)
	}

	resolved := netip.MustParseAddrPort("192.0.2.10:443")
	a = NewResolvedAddr("example.com:443", resolved)
	if got := a.DialAddress(); got != "192.0.2.10:443" {
		t.Fatalf("got %q", got)
	}
	if a.Text != "example.com:443" {
		t.Fatalf("text changed: %q", a.Text)
	}
}

func TestConnectUDP(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pc := testutil.StartEchoUDPServer(t, ctx)
	defer pc.Close()

	c, err := ConnectUDP(ctx, pc.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	// The socket is connected: plain Write/Read are addressed to the
	// server.
	_ = c.SetDeadline(time.Now().Add(2 * time.Second))
	testutil.AssertEcho(t, c, c, []byte("ping"))
}
