// Package udpforward binds a local UDP socket and forwards each datagram
// to a pool-acquired stream, framing messages with a big-endian u32 length
// prefix — SPEC_FULL §4.6's own wire format, distinct from the teacher's
// own private u16-length framing (pkg/xnet/udp.go), which this module does
// not reuse because it speaks the real Kubernetes portforward subresource
// protocol rather than krelay's own server.
package udpforward

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/hcavarsan/kftray-sub001/internal/pool"
	"github.com/hcavarsan/kftray-sub001/pkg/constants"
	slogutil "github.com/hcavarsan/kftray-sub001/pkg/slog"
)

// ErrOversizeDatagram is returned when a local datagram exceeds the
// 65507-byte UDP payload ceiling; the forwarder responds with a
// zero-length datagram and drops it rather than relaying it.
var ErrOversizeDatagram = errors.New("datagram too large")

const lengthPrefixSize = 4

// Forwarder binds a UDP socket and relays datagrams to a single remote
// port via a stream pool, framing each message with its length so the
// stream (which has no inherent datagram boundaries) can be demultiplexed
// back into discrete messages.
type Forwarder struct {
	conn       *net.UDPConn
	pool       *pool.Pool
	remotePort uint16
}

// Bind opens a UDP socket at address:port.
func Bind(address string, port uint16) (*Forwarder, uint16, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", address, port))
	if err != nil {
		return nil, 0, fmt.Errorf("resolve udp addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, 0, fmt.Errorf("bind udp: %w", err)
	}
	actual := uint16(conn.LocalAddr().(*net.UDPAddr).Port)
	return &Forwarder{conn: conn}, actual, nil
}

// WithPool attaches the stream pool and remote port this forwarder relays
// to.
func (f *Forwarder) WithPool(p *pool.Pool, remotePort uint16) *Forwarder {
	f.pool = p
	f.remotePort = remotePort
	return f
}

// Close stops the forwarder.
func (f *Forwarder) Close() error {
	return f.conn.Close()
}

// Serve reads datagrams until ctx is canceled or the socket closes.
func (f *Forwarder) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = f.conn.Close()
	}()

	buf := make([]byte, constants.MaxUDPDatagram)
	for {
		n, peer, err := f.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("udp read failed", slogutil.Error(err))
			return
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		go f.relay(ctx, peer, datagram)
	}
}

// relay sends one datagram to the remote port and writes its response back
// to peer, bounding the whole round trip (stream acquire, write, response
// read) to the per-message timeout. A stream has no deadline support, so
// the bound is enforced by racing the blocking exchange against ctx rather
// than a read/write deadline; a timeout drops the datagram silently and
// the forwarder keeps serving other peers.
func (f *Forwarder) relay(ctx context.Context, peer *net.UDPAddr, datagram []byte) {
	reqCtx, cancel := context.WithTimeout(ctx, constants.UDPResponseTimeout)
	defer cancel()

	type result struct {
		response []byte
		err      error
	}
	done := make(chan result, 1)

	go func() {
		response, err := f.exchange(reqCtx, datagram)
		done <- result{response, err}
	}()

	select {
	case <-reqCtx.Done():
		return
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, ErrOversizeDatagram) {
				_, _ = f.conn.WriteToUDP(nil, peer)
				return
			}
			if !errors.Is(r.err, context.Canceled) && !errors.Is(r.err, context.DeadlineExceeded) {
				slog.Warn("udp forward: exchange failed", slogutil.Error(r.err))
			}
			return
		}
		if _, err := f.conn.WriteToUDP(r.response, peer); err != nil {
			slog.Warn("udp forward: write to peer failed", slogutil.Error(err))
		}
	}
}

func (f *Forwarder) exchange(ctx context.Context, datagram []byte) ([]byte, error) {
	stream, errCh, err := f.pool.Acquire(ctx, f.remotePort)
	if err != nil {
		return nil, fmt.Errorf("acquire stream: %w", err)
	}
	defer stream.Close()

	// Streams carry no deadline; closing on ctx expiry is what unblocks the
	// write/read below once the message timeout elapses.
	stopWatch := make(chan struct{})
	defer close(stopWatch)
	go func() {
		select {
		case <-ctx.Done():
			_ = stream.Close()
		case <-stopWatch:
		}
	}()

	if err := writeFramed(stream, datagram); err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}

	response, err := readFramed(stream)
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}

	if err := <-errCh; err != nil {
		slog.Warn("udp forward: stream reported an error", slogutil.Error(err))
	}

	return response, nil
}

func writeFramed(w io.Writer, payload []byte) error {
	if len(payload) > constants.MaxUDPDatagram {
		return ErrOversizeDatagram
	}
	header := make([]byte, lengthPrefixSize)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFramed(r io.Reader) ([]byte, error) {
	header := make([]byte, lengthPrefixSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header)
	if length > constants.MaxUDPDatagram {
		return nil, fmt.Errorf("%w: frame length %d", ErrOversizeDatagram, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
