// Package dialer establishes outbound connections for the tunnel client.
//
// Dialers implement a small interface (DialContext) and reach the
// destination either directly or through an upstream forward proxy (SOCKS5
// or HTTP CONNECT). The package also resolves endpoint addresses and opens
// connected UDP sessions.
package dialer
