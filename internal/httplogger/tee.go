package httplogger

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hcavarsan/kftray-sub001/pkg/constants"
)

const tapBacklog = 64

// Wrap implements tcpforward.Tee. It returns pass-through wrappers around
// downConn/upConn whose Read calls additionally tee the bytes they read
// into a parsing goroutine, off the hot path: the wrapper always returns
// the real Read result first, and only best-effort forwards a copy to the
// tap (dropping it if the tap is backed up) rather than ever blocking the
// proxied connection on parsing.
func (l *Logger) Wrap(reqID string, downConn, upConn io.ReadWriteCloser) (io.ReadWriteCloser, io.ReadWriteCloser) {
	reqTap := make(chan []byte, tapBacklog)
	respTap := make(chan []byte, tapBacklog)

	ctx, cancel := context.WithCancel(context.Background())
	go l.parseRequests(ctx, reqID, reqTap)
	go l.parseResponses(ctx, reqID, respTap)

	down := &teeReadWriteCloser{ReadWriteCloser: downConn, tap: reqTap, onClose: cancel}
	up := &teeReadWriteCloser{ReadWriteCloser: upConn, tap: respTap}
	return down, up
}

type teeReadWriteCloser struct {
	io.ReadWriteCloser
	tap       chan []byte
	closeOnce sync.Once
	onClose   func()
}

func (t *teeReadWriteCloser) Read(p []byte) (int, error) {
	n, err := t.ReadWriteCloser.Read(p)
	if n > 0 {
		cp := make([]byte, n)
		copy(cp, p[:n])
		select {
		case t.tap <- cp:
		default:
		}
	}
	if err != nil {
		t.closeOnce.Do(func() { close(t.tap) })
	}
	return n, err
}

func (t *teeReadWriteCloser) Close() error {
	if t.onClose != nil {
		t.onClose()
	}
	return t.ReadWriteCloser.Close()
}

// tapReader adapts a channel of byte slices back into an io.Reader for
// bufio/net-http's streaming parsers.
type tapReader struct {
	tap  <-chan []byte
	left []byte
}

func (r *tapReader) Read(p []byte) (int, error) {
	for len(r.left) == 0 {
		chunk, ok := <-r.tap
		if !ok {
			return 0, io.EOF
		}
		r.left = chunk
	}
	n := copy(p, r.left)
	r.left = r.left[n:]
	return n, nil
}

// parseRequests reads the client->server tap as a sequence of HTTP/1.x
// requests, pairing each with a new trace id stored under reqID.
func (l *Logger) parseRequests(ctx context.Context, reqID string, tap <-chan []byte) {
	br := bufio.NewReader(&tapReader{tap: tap})
	for {
		req, err := http.ReadRequest(br)
		if err != nil {
			return
		}
		traceID := l.beginTrace(reqID)
		body, bodyErr := readBody(req.Body, req.Header, l.maxBody)
		req.Body.Close()

		text := formatRequestLog(req, body, bodyErr, traceID, time.Now())
		l.submit(false, text)

		if ctx.Err() != nil {
			return
		}
	}
}

// parseResponses mirrors parseRequests for the server->client direction,
// closing out the trace opened by the matching request.
func (l *Logger) parseResponses(ctx context.Context, reqID string, tap <-chan []byte) {
	br := bufio.NewReader(&tapReader{tap: tap})
	for {
		resp, err := http.ReadResponse(br, nil)
		if err != nil {
			return
		}

		info, ok := l.endTrace(reqID)
		traceID := reqID
		started := time.Now()
		if ok {
			traceID = info.traceID
			started = info.startedAt
		} else {
			slog.Debug("http logger: response with no matching trace", slog.String(constants.LogFieldRequestID, reqID))
		}

		if isWebSocketUpgrade(resp) {
			text := formatResponseLog(resp, nil, nil, traceID, time.Now(), time.Since(started), !ok)
			l.submit(true, text)
			return
		}

		body, bodyErr := readResponseBody(resp, l.maxBody)
		resp.Body.Close()

		text := formatResponseLog(resp, body, bodyErr, traceID, time.Now(), time.Since(started), !ok)
		l.submit(true, text)

		if ctx.Err() != nil {
			return
		}
	}
}

func readResponseBody(resp *http.Response, maxBody int64) ([]byte, error) {
	if hasNoBody(resp.StatusCode) {
		return nil, nil
	}

	limit := maxBody
	if resp.TransferEncoding != nil && len(resp.TransferEncoding) > 0 {
		limit = constants.HTTPLogMaxChunkedBody
	}
	return readBody(resp.Body, resp.Header, limit)
}
