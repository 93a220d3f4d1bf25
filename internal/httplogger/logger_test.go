package httplogger

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) (*Logger, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	l, err := New(ctx, fs, "/logs", 7, 8080, Options{})
	require.NoError(t, err)
	return l, fs
}

// TestWrapPairsRequestAndResponse drives the tee the way the TCP forwarder
// does: raw bytes are pushed into each side's underlying connection, then
// pulled through the wrapped Read (which is where the tee observes them),
// mirroring tcpBroker's read-then-write relay loop.
func TestWrapPairsRequestAndResponse(t *testing.T) {
	l, fs := newTestLogger(t)

	down, up := newLoopback(), newLoopback()
	downRWC, upRWC := l.Wrap("conn-1", down, up)

	req := "GET /health HTTP/1.1\r\nHost: svc\r\n\r\n"
	resp := "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"

	down.push([]byte(req))
	up.push([]byte(resp))

	buf := make([]byte, 4096)
	_, err := downRWC.Read(buf)
	require.NoError(t, err)
	_, err = upRWC.Read(buf)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		data, err := afero.ReadFile(fs, "/logs/7_8080.log")
		return err == nil && len(data) > 0
	}, 2*time.Second, 10*time.Millisecond)

	data, err := afero.ReadFile(fs, "/logs/7_8080.log")
	require.NoError(t, err)
	assert.Contains(t, string(data), "Method: GET")
	assert.Contains(t, string(data), "Status: 200")
}

// TestWrapMarksUnpairedResponse drives a response through the tee with no
// matching request ever sent on the same connection, the way a response
// could arrive after its request's trace already expired or was never
// captured.
func TestWrapMarksUnpairedResponse(t *testing.T) {
	l, fs := newTestLogger(t)

	down, up := newLoopback(), newLoopback()
	downRWC, upRWC := l.Wrap("conn-2", down, up)
	_ = downRWC

	resp := "HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nok"
	up.push([]byte(resp))

	buf := make([]byte, 4096)
	_, err := upRWC.Read(buf)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		data, err := afero.ReadFile(fs, "/logs/7_8080.log")
		return err == nil && len(data) > 0
	}, 2*time.Second, 10*time.Millisecond)

	data, err := afero.ReadFile(fs, "/logs/7_8080.log")
	require.NoError(t, err)
	assert.Contains(t, string(data), "No trace info")
}

func TestIsWebSocketUpgradeDetectsHandshake(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusSwitchingProtocols,
		Header: http.Header{
			"Upgrade":    []string{"websocket"},
			"Connection": []string{"Upgrade"},
		},
	}
	assert.True(t, isWebSocketUpgrade(resp))
}

func TestIsWebSocketUpgradeRejectsPlainResponse(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusOK, Header: http.Header{}}
	assert.False(t, isWebSocketUpgrade(resp))
}

// loopback is a minimal io.ReadWriteCloser test double: push() queues bytes
// as if they had arrived on the wire, and Read drains them.
type loopback struct {
	ch chan []byte
}

func newLoopback() *loopback {
	return &loopback{ch: make(chan []byte, 16)}
}

func (l *loopback) push(p []byte) {
	l.ch <- append([]byte(nil), p...)
}

func (l *loopback) Read(p []byte) (int, error) {
	chunk, ok := <-l.ch
	if !ok {
		return 0, errClosedLoopback
	}
	return copy(p, chunk), nil
}

func (l *loopback) Write(p []byte) (int, error) {
	return len(p), nil
}

func (l *loopback) Close() error {
	return nil
}

type loopbackClosedError struct{}

func (*loopbackClosedError) Error() string { return "loopback closed" }

var errClosedLoopback = &loopbackClosedError{}
