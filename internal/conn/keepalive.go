// Package conn hardens and relays established connections: OS-level TCP
// keepalive, a keepalive-applying listener, and a bidirectional splice.
package conn

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sjtrny/rathole/internal/logger"
)

// ErrKeepAliveUnsupported is returned when keepalive cannot be configured
// on the connection, either because it is not TCP or because the platform
// refuses the socket options.
var ErrKeepAliveUnsupported = errors.New("tcp keepalive unsupported")

// ApplyKeepAlive enables TCP keepalive on c: the first probe fires after
// idle, subsequent probes every interval. The probe count is left at the
// OS default. Safe to call more than once; the last call wins.
func ApplyKeepAlive(c net.Conn, idle, interval time.Duration) error {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return fmt.Errorf("%w: %T is not a TCP connection", ErrKeepAliveUnsupported, c)
	}

	err := tc.SetKeepAliveConfig(net.KeepAliveConfig{
		Enable:   true,
		Idle:     idle,
		Interval: interval,
		Count:    -1,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeepAliveUnsupported, err)
	}

	logger.Trace().Dur("idle", idle).Dur("interval", interval).Msg("set tcp keepalive")

	return nil
}
