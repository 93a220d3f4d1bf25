package xnet

import (
	"io"
	"log/slog"

	"github.com/hcavarsan/kftray-sub001/pkg/constants"
)

var tcpPool = NewBufferPool(constants.TCPBufferSize)

// readWriteCloser is the minimal shape ProxyTCP needs from each side: a
// *net.TCPConn satisfies it, and so does a Kubernetes portforward data
// stream (httpstream.Stream).
type readWriteCloser interface {
	io.Reader
	io.Writer
	io.Closer
}

// halfReadCloser lets a side shut down reads without closing the whole
// connection. *net.TCPConn implements it; a portforward stream does not, so
// callers of ProxyTCP against a stream fall back to a full Close.
type halfReadCloser interface {
	CloseRead() error
}

func closeReadSide(c io.Closer) {
	if hc, ok := c.(halfReadCloser); ok {
		_ = hc.CloseRead()
		return
	}
	_ = c.Close()
}

// This does the actual data transfer.
// The broker only closes the Read side.
func tcpBroker(dst io.Writer, src readWriteCloser, srcClosed chan struct{}) {
	defer src.Close()
	bufPtr := tcpPool.Get().(*[]byte)
	defer tcpPool.Put(bufPtr)

	buf := *bufPtr
	// We can handle errors in a finer-grained manner by inlining io.Copy (it's
	// simple, and we drop the ReaderFrom or WriterTo checks for
	// net.Conn->net.Conn transfers, which aren't needed). This would also let
	// us adjust buffer size.
	_, _ = io.CopyBuffer(dst, src, buf)

	close(srcClosed)
}

// ProxyTCP is excerpt from https://stackoverflow.com/a/27445109/4725840,
// generalized from two *net.TCPConn to any readWriteCloser pair so that one
// side can be a Kubernetes portforward data stream rather than a second TCP
// socket.
func ProxyTCP(reqID string, downConn, upConn readWriteCloser) {
	l := slog.With(slog.String(constants.LogFieldRequestID, reqID))
	defer l.Debug("ProxyTCP exit")

	// channels to wait on the close event for each connection
	upClosed := make(chan struct{})
	downClosed := make(chan struct{})

	go tcpBroker(upConn, downConn, downClosed)
	go tcpBroker(downConn, upConn, upClosed)

	// wait for one half of the proxy to exit, then trigger a shutdown of the
	// other half by calling CloseRead() when possible. This breaks the read
	// loop in the broker and lets us fully close the connection cleanly
	// without a "use of closed network connection" error.
	var waitFor chan struct{}
	select {
	case <-downClosed:
		l.Debug("Client close connection")
		closeReadSide(upConn)
		waitFor = upClosed
	case <-upClosed:
		l.Debug("Server close connection")
		closeReadSide(downConn)
		waitFor = downClosed
	}

	// Wait for the other connection to close.
	// This "waitFor" pattern isn't required, but gives us a way to track the
	// connection and ensure all copies terminate correctly; we can trigger
	// stats on entry and deferred exit of this function.
	<-waitFor
}
