package feed

import (
	"context"
	"testing"
	"time"
)

type fakeConn struct {
	closed chan struct{}
}

func (c *fakeConn) Close() error {
	close(c.closed)
	return nil
}

func TestCloseOnDone_ReleasedWhenReadLoopReturns(t *testing.T) {
	conn := &fakeConn{closed: make(chan struct{})}
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		closeOnDone(context.Background(), done, conn)
		close(exited)
	}()

	// The read loop finishing must release the watcher without closing
	// anything: a reconnect reuses the context for the next connection.
	close(done)
	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher still running after read loop returned")
	}
	select {
	case <-conn.closed:
		t.Error("watcher closed a connection whose read loop already returned")
	default:
	}
}

func TestCloseOnDone_ClosesConnOnCancel(t *testing.T) {
	conn := &fakeConn{closed: make(chan struct{})}
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())

	go closeOnDone(ctx, done, conn)

	cancel()
	select {
	case <-conn.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation should close the connection to unblock the reader")
	}
}
