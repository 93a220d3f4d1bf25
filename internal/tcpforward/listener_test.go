package tcpforward

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandshake struct {
	called bool
	err    error
}

func (f *fakeHandshake) Perform(io.ReadWriter) error {
	f.called = true
	return f.err
}

func TestWithHandshakeSetsField(t *testing.T) {
	l, _, err := Bind("127.0.0.1", 0)
	require.NoError(t, err)
	defer l.Close()

	h := &fakeHandshake{}
	l.WithHandshake(h)
	assert.Same(t, h, l.handshake)
}

func TestBindPicksOSPortWhenZero(t *testing.T) {
	l, port, err := Bind("127.0.0.1", 0)
	require.NoError(t, err)
	defer l.Close()

	assert.NotZero(t, port)
	assert.GreaterOrEqual(t, int(port), 1024)
}

func TestBindAddressInUse(t *testing.T) {
	l1, port, err := Bind("127.0.0.1", 0)
	require.NoError(t, err)
	defer l1.Close()

	_, _, err = Bind("127.0.0.1", port)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBindFailed)
}
