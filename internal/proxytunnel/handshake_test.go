package proxytunnel

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTargetSplitsHostAndPort(t *testing.T) {
	host, port, err := ParseTarget("db.internal:5432")
	require.NoError(t, err)
	assert.Equal(t, "db.internal", host)
	assert.Equal(t, uint16(5432), port)
}

func TestParseTargetRejectsMissingPort(t *testing.T) {
	_, _, err := ParseTarget("db.internal")
	assert.Error(t, err)
}

func TestDialerPerformWritesHeaderAndAcceptsOK(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		d := Dialer{Target: "10.0.0.9:6379"}
		done <- d.Perform(client)
	}()

	hdr, err := ReadHeader(server)
	require.NoError(t, err)
	assert.Equal(t, ProtoTCP, hdr.Protocol)
	assert.Equal(t, uint16(6379), hdr.Port)
	assert.Equal(t, "10.0.0.9", hdr.Addr.String())

	_, err = server.Write(Acknowledgement{Code: AckOK}.Marshal())
	require.NoError(t, err)

	require.NoError(t, <-done)
}

func TestDialerPerformReturnsErrorOnRejectedAck(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		d := Dialer{Target: "10.0.0.9:6379"}
		done <- d.Perform(client)
	}()

	_, err := ReadHeader(server)
	require.NoError(t, err)
	_, err = server.Write(Acknowledgement{Code: AckNoSuchHost}.Marshal())
	require.NoError(t, err)

	assert.Error(t, <-done)
}

func TestDialerPerformRejectsInvalidTarget(t *testing.T) {
	d := Dialer{Target: "not-a-valid-target"}
	err := d.Perform(&bytes.Buffer{})
	assert.Error(t, err)
}
