package proxytunnel

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTripsWithIPAddr(t *testing.T) {
	hdr := Header{
		Version:  1,
		Protocol: ProtoTCP,
		Port:     5432,
		Addr:     AddrFromHost("10.0.0.5"),
	}

	got, err := ReadHeader(bytes.NewReader(hdr.Marshal()))
	require.NoError(t, err)

	assert.Equal(t, hdr.Version, got.Version)
	assert.Equal(t, hdr.Protocol, got.Protocol)
	assert.Equal(t, hdr.Port, got.Port)
	assert.Equal(t, "10.0.0.5", got.Addr.String())
}

func TestHeaderRoundTripsWithHostname(t *testing.T) {
	hdr := Header{
		Version:  1,
		Protocol: ProtoTCP,
		Port:     443,
		Addr:     AddrFromHost("db.internal.example.com"),
	}

	got, err := ReadHeader(bytes.NewReader(hdr.Marshal()))
	require.NoError(t, err)
	assert.Equal(t, "db.internal.example.com", got.Addr.String())
	assert.Equal(t, uint16(443), got.Port)
}

func TestReadHeaderRejectsShortBody(t *testing.T) {
	_, err := ReadHeader(bytes.NewReader([]byte{1, 0, 3}))
	assert.Error(t, err)
}

func TestAcknowledgementRoundTrips(t *testing.T) {
	ack := Acknowledgement{Code: AckNoSuchHost}
	got, err := ReadAck(bytes.NewReader(ack.Marshal()))
	require.NoError(t, err)
	assert.Equal(t, AckNoSuchHost, got.Code)
}
