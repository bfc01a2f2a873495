// Command rathole-forward accepts TCP connections on a local address and
// forwards each one to a remote endpoint, optionally through an upstream
// SOCKS5 or HTTP proxy, with exponential-backoff reconnection, optional
// PROXY protocol preamble, and TCP keepalive on the outbound session.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/sjtrny/rathole/internal/conn"
	"github.com/sjtrny/rathole/internal/dialer"
	"github.com/sjtrny/rathole/internal/logger"
	"github.com/sjtrny/rathole/internal/proxyproto"
	"github.com/sjtrny/rathole/internal/retry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	proxyProtocol   string
	keepIdle        time.Duration
	keepInterval    time.Duration
	retryInterval   time.Duration
	retryMaxElapsed time.Duration
}

func run() error {
	var (
		listen = pflag.String("listen", "", "Local TCP listen address (e.g. 127.0.0.1:2333)")
		remote = pflag.String("remote", "", "Remote endpoint to forward to (host:port)")

		proxy = pflag.String("proxy", defaultProxy(), "Upstream proxy URL: direct:// | socks5://[user:pass@]host:port | http://[user:pass@]host:port")

		proxyProtocol      = pflag.String("proxy-protocol", "", "PROXY protocol preamble to send on outbound connections: v1 | v2. Empty disables.")
		dialTimeout        = pflag.Duration("dial-timeout", 10*time.Second, "Timeout for outbound DNS lookup and TCP connect")
		negotiationTimeout = pflag.Duration("negotiation-timeout", 10*time.Second, "Timeout for proxy handshake to set up connection")
		tcpKeepAlive       = pflag.String("tcp-keepalive", "20:8", "TCP keepalive on outbound connections: off|keepidle:keepintvl (seconds)")
		retryInterval      = pflag.Duration("retry-interval", time.Second, "Initial wait between reconnection attempts; grows exponentially with jitter")
		retryMaxElapsed    = pflag.Duration("retry-max-elapsed", 0, "Give up on a connection after retrying this long. Zero retries until shutdown.")
		verbose            = pflag.Bool("verbose", false, "Enable per-connection trace logging")
	)

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	logger.Init(*verbose)

	if *listen == "" {
		return errors.New("missing --listen")
	}
	if *remote == "" {
		return errors.New("missing --remote")
	}
	if _, _, err := dialer.HostPortPair(*remote); err != nil {
		return fmt.Errorf("invalid --remote: %w", err)
	}
	if *proxyProtocol != "" && *proxyProtocol != "v1" && *proxyProtocol != "v2" {
		return fmt.Errorf("invalid --proxy-protocol: %q (want v1 or v2)", *proxyProtocol)
	}

	keepIdle, keepInterval, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	dialCfg := dialer.Config{
		DialTimeout:        *dialTimeout,
		NegotiationTimeout: *negotiationTimeout,
	}

	d, err := dialer.New(dialCfg, *proxy)
	if err != nil {
		return fmt.Errorf("invalid --proxy: %w", err)
	}

	opts := options{
		proxyProtocol:   *proxyProtocol,
		keepIdle:        keepIdle,
		keepInterval:    keepInterval,
		retryInterval:   *retryInterval,
		retryMaxElapsed: *retryMaxElapsed,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Seed the endpoint with a resolution up front; direct dials skip a
	// lookup per connection, proxied dials keep the textual form anyway.
	remoteAddr := dialer.NewAddr(*remote)
	rctx, cancel := context.WithTimeout(ctx, *dialTimeout)
	if resolved, err := dialer.Resolve(rctx, *remote); err == nil {
		remoteAddr = dialer.NewResolvedAddr(*remote, resolved)
		logger.Debug().Stringer("resolved", resolved).Msg("resolved remote endpoint")
	} else {
		logger.Warn().Err(err).Msg("remote endpoint not resolvable yet, will resolve per dial")
	}
	cancel()

	ln, err := conn.ListenTCP("tcp", *listen, keepIdle, keepInterval)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})

	logger.Info().Str("listen", *listen).Str("remote", *remote).Str("proxy", *proxy).Msg("forwarding")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			c, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			go handle(ctx, c, d, remoteAddr, opts)
		}
	})

	err = g.Wait()
	logger.Info().Msg("shutting down")
	return err
}

func handle(ctx context.Context, local net.Conn, d dialer.Dialer, remote dialer.Addr, opts options) {
	defer local.Close()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = opts.retryInterval
	policy.MaxElapsedTime = opts.retryMaxElapsed

	notify := func(err error, wait time.Duration) {
		logger.Warn().Err(err).Dur("wait", wait).Stringer("remote", remote).Msg("connect failed, retrying")
	}

	out, err := retry.RetryNotifyContext(ctx, policy, func() (net.Conn, error) {
		return dialer.DialEndpoint(ctx, d, remote)
	}, notify)
	if err != nil {
		logger.Error().Err(err).Stringer("remote", remote).Msg("giving up on connection")
		return
	}
	defer out.Close()

	if opts.proxyProtocol != "" {
		if err := proxyproto.WriteHeader(out, opts.proxyProtocol); err != nil {
			logger.Error().Err(err).Msg("proxy protocol header")
			return
		}
	}

	if opts.keepIdle > 0 {
		if err := conn.ApplyKeepAlive(out, opts.keepIdle, opts.keepInterval); err != nil {
			logger.Warn().Err(err).Msg("keepalive not applied")
		}
	}

	if err := conn.CopyBidirectional(ctx, local, out); err != nil {
		logger.Debug().Err(err).Msg("relay ended")
	}
}

func parseTCPKeepAlive(s string) (idle, interval time.Duration, err error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, 0, errors.New("empty")
	}
	if s == "off" {
		return 0, 0, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, errors.New("expected off|keepidle:keepintvl")
	}
	idle, err = parsePositiveSeconds(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("keepidle: %w", err)
	}
	interval, err = parsePositiveSeconds(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("keepintvl: %w", err)
	}

	return idle, interval, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return time.Duration(n) * time.Second, nil
}

func defaultProxy() string {
	if p := os.Getenv("ALL_PROXY"); p != "" {
		return p
	}

	if p := os.Getenv("all_proxy"); p != "" {
		return p
	}

	return ""
}
