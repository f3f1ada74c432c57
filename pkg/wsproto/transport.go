package wsproto

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Transport is the byte-pipe collaborator a Session drives: everything
// below "bytes in, bytes out" (TCP, TLS, proxying) is delegated to it,
// per spec §6. This engine ships one concrete implementation,
// NetTransport; callers needing a proxy or a fake transport for testing
// provide their own.
type Transport interface {
	// Connect establishes the underlying byte pipe to addr.
	Connect(ctx context.Context, addr string) error
	// Write sends data, blocking until it is fully written or an error
	// occurs.
	Write(data []byte) error
	// Read reads whatever is immediately available, blocking only long
	// enough to get at least one byte (or hit EOF/error).
	Read(buf []byte) (n int, err error)
	// WaitReadable blocks until data is available to Read, the deadline
	// passes, or ctx is canceled. A zero deadline means no timeout.
	WaitReadable(ctx context.Context, deadline time.Time) error
	// Pending reports whether Read would return data without blocking.
	Pending() bool
	// Shutdown tears the pipe down. It is always safe to call more than
	// once.
	Shutdown() error
}

// NetTransport is a thin Transport over a pre-established net.Conn (or
// tls.Conn — TLS wrapping itself is the caller's responsibility, same as
// spec.md §1 excludes it from the core engine). It is grounded on
// tzrikka-timpani/pkg/websocket/dial.go's use of the handshake response
// body as an io.ReadWriteCloser, and on
// pepnova-9-go-websocket-server/server.go's raw-socket read/write loop,
// mirrored here from the server side to the client side.
type NetTransport struct {
	conn     net.Conn
	pushback []byte // One byte read by WaitReadable's probe, not yet consumed by Read.
}

// NewNetTransport wraps an already-dialed connection. Callers that need
// TLS should pass a *tls.Conn that has already completed its handshake.
func NewNetTransport(conn net.Conn) *NetTransport {
	return &NetTransport{conn: conn}
}

// Connect is a no-op for NetTransport: the net.Conn is supplied already
// connected via NewNetTransport. It exists to satisfy Transport for
// implementations that do need to dial lazily.
func (t *NetTransport) Connect(_ context.Context, _ string) error {
	if t.conn == nil {
		return fmt.Errorf("%w: no net.Conn supplied", ErrWebSocketUnavailable)
	}
	return nil
}

// Write writes data in full, per net.Conn.Write's own full-write
// contract.
func (t *NetTransport) Write(data []byte) error {
	_, err := t.conn.Write(data)
	return err
}

// Read reads whatever is immediately available, first draining any byte
// WaitReadable already pulled off the wire as a readability probe.
func (t *NetTransport) Read(buf []byte) (int, error) {
	if len(t.pushback) > 0 {
		n := copy(buf, t.pushback)
		t.pushback = t.pushback[n:]
		return n, nil
	}
	return t.conn.Read(buf)
}

// WaitReadable sets a read deadline (bounded additionally by ctx, if it
// carries one) and issues a one-byte probe read, relying on
// net.Conn's deadline machinery rather than a separate poller.
func (t *NetTransport) WaitReadable(ctx context.Context, deadline time.Time) error {
	if dl, ok := ctx.Deadline(); ok && (deadline.IsZero() || dl.Before(deadline)) {
		deadline = dl
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return err
	}
	defer func() { _ = t.conn.SetReadDeadline(time.Time{}) }()

	one := make([]byte, 1)
	n, err := t.conn.Read(one)
	if n > 0 {
		t.pushback = append(t.pushback, one[:n]...)
	}
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil
		}
		return err
	}
	return nil
}

// Pending reports whether a previously pushed-back probe byte (read by
// WaitReadable to detect readability) is waiting to be consumed.
func (t *NetTransport) Pending() bool {
	return len(t.pushback) > 0
}

// Shutdown closes the underlying connection. It tolerates being called
// more than once, same as io.Closer in general practice.
func (t *NetTransport) Shutdown() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	if err != nil && err != io.ErrClosedPipe && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
