// Package tcpforward binds a local TCP listener and splices each accepted
// connection to a stream acquired from internal/pool, generalizing the
// teacher's cmd/client.handleTCPConn (which spliced a *net.TCPConn to a
// stream carrying its own private wire protocol) to splice directly: this
// module's pods are reached over the real Kubernetes portforward
// subresource, which needs no additional handshake once a stream exists.
package tcpforward

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"syscall"

	"github.com/google/uuid"

	"github.com/hcavarsan/kftray-sub001/internal/pool"
	"github.com/hcavarsan/kftray-sub001/pkg/constants"
	slogutil "github.com/hcavarsan/kftray-sub001/pkg/slog"
	"github.com/hcavarsan/kftray-sub001/pkg/xnet"
)

// BindLoopback is Bind with SO_REUSEADDR set before bind, for rules whose
// auto_loopback_address option asks to bind a loopback alias that another
// short-lived listener may have just vacated.
func BindLoopback(address string, port uint16) (*Listener, uint16, error) {
	lc := net.ListenConfig{Control: reuseAddrControl}
	ln, err := lc.Listen(context.Background(), "tcp", xnet.JoinHostPort(address, port))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, 0, fmt.Errorf("%w: %s: address in use", ErrBindFailed, address)
		}
		if errors.Is(err, os.ErrPermission) {
			return nil, 0, fmt.Errorf("%w: %s: permission denied", ErrBindFailed, address)
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrBindFailed, err)
	}
	actual := uint16(ln.Addr().(*net.TCPAddr).Port)
	return &Listener{ln: ln}, actual, nil
}

// Tee is implemented by an HTTP logger to observe forwarded bytes without
// taking ownership of either side of the connection. downConn is the real
// local TCP connection; upConn is the acquired pool stream, which is not a
// net.Conn (it carries no local/remote address or deadlines).
type Tee interface {
	Wrap(reqID string, downConn, upConn io.ReadWriteCloser) (io.ReadWriteCloser, io.ReadWriteCloser)
}

// Handshake is performed on a freshly acquired stream before any
// application bytes flow. workload_type=proxy rules use this to tell the
// in-cluster kftray-server pod which destination to dial; service/pod
// rules, whose stream already terminates at the right container port via
// the portforward subresource, leave it nil.
type Handshake interface {
	Perform(stream io.ReadWriter) error
}

// Listener binds a local address/port and forwards accepted connections
// through a pool to a single remote port.
type Listener struct {
	ln         net.Listener
	pool       *pool.Pool
	remotePort uint16

	tee       Tee
	handshake Handshake
}

// Bind opens a TCP listener at address:port. port == 0 asks the OS to pick
// a free port; the chosen port is always returned so the caller can report
// it back before any bytes flow, per SPEC_FULL's boundary behavior.
func Bind(address string, port uint16) (*Listener, uint16, error) {
	ln, err := net.Listen("tcp", xnet.JoinHostPort(address, port))
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return nil, 0, fmt.Errorf("%w: %s: address in use", ErrBindFailed, address)
		}
		if errors.Is(err, os.ErrPermission) {
			return nil, 0, fmt.Errorf("%w: %s: permission denied", ErrBindFailed, address)
		}
		return nil, 0, fmt.Errorf("%w: %v", ErrBindFailed, err)
	}
	actual := uint16(ln.Addr().(*net.TCPAddr).Port)
	return &Listener{ln: ln}, actual, nil
}

// WithPool attaches the stream pool and remote port this listener forwards
// to.
func (l *Listener) WithPool(p *pool.Pool, remotePort uint16) *Listener {
	l.pool = p
	l.remotePort = remotePort
	return l
}

// WithTee installs (or clears, if t is nil) an HTTP-logger tee; it may be
// changed at any time and is read fresh for every new connection, giving
// live logging-toggle semantics.
func (l *Listener) WithTee(t Tee) {
	l.tee = t
}

// WithHandshake installs a per-stream handshake performed before splicing.
func (l *Listener) WithHandshake(h Handshake) *Listener {
	l.handshake = h
	return l
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Serve accepts connections until ctx is canceled or the listener closes.
func (l *Listener) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = l.ln.Close()
	}()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("accept failed", slogutil.Error(err))
			return
		}
		go l.handle(ctx, conn)
	}
}

func (l *Listener) handle(ctx context.Context, clientConn net.Conn) {
	reqID := uuid.NewString()
	lg := slog.With(slog.String(constants.LogFieldRequestID, reqID))

	stream, errCh, err := l.pool.Acquire(ctx, l.remotePort)
	if err != nil {
		lg.Error("acquire stream failed", slogutil.Error(err))
		_ = clientConn.Close()
		return
	}

	if l.handshake != nil {
		if err := l.handshake.Perform(stream); err != nil {
			lg.Error("handshake failed", slogutil.Error(err))
			_ = stream.Close()
			_ = clientConn.Close()
			return
		}
	}

	down, up := io.ReadWriteCloser(clientConn), io.ReadWriteCloser(stream)
	if tee := l.tee; tee != nil {
		down, up = tee.Wrap(reqID, down, up)
	}
	xnet.ProxyTCP(reqID, down, up)

	if err := <-errCh; err != nil {
		lg.Warn("stream reported an error", slogutil.Error(err))
	}
}
