package conn

import (
	"context"
	"io"
	"net"
	"testing"
	"time"
)

func TestCopyBidirectional(t *testing.T) {
	t.Parallel()

	a1, a2 := net.Pipe()
	b1, b2 := net.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- CopyBidirectional(context.Background(), a2, b1)
	}()

	msg := []byte("ping")
	go func() {
		_, _ = a1.Write(msg)
	}()
	buf := make([]byte, len(msg))
	if _, err := io.ReadFull(b2, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != string(msg) {
		t.Fatalf("got %q want %q", buf, msg)
	}

	go func() {
		_, _ = b2.Write(msg)
	}()
	if _, err := io.ReadFull(a1, buf); err != nil {
		t.Fatal(err)
	}

	// Closing one outer end tears the relay down.
	_ = a1.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop after close")
	}
}

func TestCopyBidirectionalContextCancel(t *testing.T) {
	t.Parallel()

	a1, a2 := net.Pipe()
	b1, b2 := net.Pipe()
	defer a1.Close()
	defer b2.Close()

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- CopyBidirectional(ctx, a2, b1)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop after cancellation")
	}
}
