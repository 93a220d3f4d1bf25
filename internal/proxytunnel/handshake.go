package proxytunnel

import (
	"fmt"
	"io"
	"net"
	"strconv"
)

const headerVersion = 1

// ParseTarget splits a workload_type=proxy rule's Target ("host:port") into
// the destination host and port a Header should name.
func ParseTarget(target string) (host string, port uint16, err error) {
	h, p, err := net.SplitHostPort(target)
	if err != nil {
		return "", 0, fmt.Errorf("invalid proxy target %q: %w", target, err)
	}
	n, err := strconv.ParseUint(p, 10, 16)
	if err != nil {
		return "", 0, fmt.Errorf("invalid proxy target port %q: %w", target, err)
	}
	return h, uint16(n), nil
}

// Dialer performs the client side of the handshake on a freshly acquired
// stream: write a Header naming target, then block for the
// acknowledgement. It satisfies internal/tcpforward.Handshake. Protocol is
// always TCP; workload_type=proxy rules reject UDP before a Dialer is ever
// constructed (see internal/orchestrator.startRule).
type Dialer struct {
	Target string
}

// Perform implements internal/tcpforward.Handshake.
func (d Dialer) Perform(stream io.ReadWriter) error {
	host, port, err := ParseTarget(d.Target)
	if err != nil {
		return err
	}

	hdr := Header{
		Version:  headerVersion,
		Protocol: ProtoTCP,
		Port:     port,
		Addr:     AddrFromHost(host),
	}
	if _, err := stream.Write(hdr.Marshal()); err != nil {
		return fmt.Errorf("write handshake header: %w", err)
	}

	ack, err := ReadAck(stream)
	if err != nil {
		return fmt.Errorf("read handshake ack: %w", err)
	}
	if ack.Code != AckOK {
		return fmt.Errorf("kftray-server rejected dial to %s:%d: %w", host, port, ack.Code)
	}
	return nil
}
