package conn

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
)

// CopyBidirectional relays bytes between left and right until either side
// closes or ctx is cancelled. Both connections are closed before returning.
func CopyBidirectional(ctx context.Context, left, right net.Conn) error {
	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	// If the context is canceled, close both sides to unblock Copy.
	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	g := errgroup.Group{}

	// Either direction finishing tears down both so the opposite Copy
	// unblocks.
	g.Go(func() error {
		_, err := io.Copy(left, right)
		closeBoth()
		return ignoreClosed(err)
	})

	g.Go(func() error {
		_, err := io.Copy(right, left)
		closeBoth()
		return ignoreClosed(err)
	})

	return g.Wait()
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
