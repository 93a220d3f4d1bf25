package udpforward

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcavarsan/kftray-sub001/pkg/constants"
)

func TestBindPicksOSPortWhenZero(t *testing.T) {
	f, port, err := Bind("127.0.0.1", 0)
	require.NoError(t, err)
	defer f.Close()

	assert.NotZero(t, port)
}

func TestFramedRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello world")

	require.NoError(t, writeFramed(&buf, payload))

	got, err := readFramed(&buf)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestWriteFramedRejectsOversizePayload(t *testing.T) {
	var buf bytes.Buffer
	oversize := make([]byte, constants.MaxUDPDatagram+1)

	err := writeFramed(&buf, oversize)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOversizeDatagram)
}

func TestServeShutsDownOnContextCancel(t *testing.T) {
	f, _, err := Bind("127.0.0.1", 0)
	require.NoError(t, err)
	defer f.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.Serve(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}

