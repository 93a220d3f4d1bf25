// Package proxytunnel implements the wire handshake a workload_type=proxy
// rule speaks to its in-cluster kftray-server pod: one small header naming
// the destination host:port the pod should dial, followed by an
// acknowledgement, before the portforward stream is spliced through
// unmodified. Grounded on knight42/krelay's pkg/xnet header/addr/ack
// framing, trimmed to the two address forms and acknowledgement codes this
// module actually needs.
package proxytunnel

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// AddrType distinguishes how Addr.data should be interpreted.
type AddrType byte

const (
	AddrTypeIP AddrType = iota
	AddrTypeHost
)

// Addr is a destination host, either a literal IP or a DNS name.
type Addr struct {
	typ  AddrType
	data []byte
}

func (a Addr) Marshal() []byte {
	return a.data
}

func (a Addr) String() string {
	if a.typ == AddrTypeIP {
		return net.IP(a.data).String()
	}
	return string(a.data)
}

// AddrFromHost builds an Addr from a destination string, treating it as a
// literal IP when it parses as one and as a DNS name otherwise.
func AddrFromHost(host string) Addr {
	if ip := net.ParseIP(host); ip != nil {
		if ipv4 := ip.To4(); ipv4 != nil {
			ip = ipv4
		}
		return Addr{typ: AddrTypeIP, data: ip}
	}
	return Addr{typ: AddrTypeHost, data: []byte(host)}
}

func addrFromBytes(typ AddrType, data []byte) Addr {
	return Addr{typ: typ, data: data}
}

const (
	// headerFixedLen is 1(version) + 2(total length) + 1(protocol) +
	// 2(port) + 1(addr type), the bytes preceding the variable-length
	// address.
	headerFixedLen = 7
)

// ProtoTCP is the only Header.Protocol value this module's kftray-server
// dials; workload_type=proxy rules reject UDP upstream in the orchestrator,
// so the field exists for wire-format completeness rather than a second
// code path.
const ProtoTCP byte = 1

// Header is the request a kftray-agent-side handshake sends before any
// application bytes: "dial this host:port over this protocol".
type Header struct {
	Version  byte
	Protocol byte
	Port     uint16
	Addr     Addr
}

// Marshal encodes h as a length-prefixed frame.
func (h Header) Marshal() []byte {
	addrBytes := h.Addr.Marshal()
	totalLen := headerFixedLen + len(addrBytes)
	buf := make([]byte, totalLen)

	cursor := 0
	buf[cursor] = h.Version
	cursor++
	binary.BigEndian.PutUint16(buf[cursor:cursor+2], uint16(totalLen))
	cursor += 2
	buf[cursor] = h.Protocol
	cursor++
	binary.BigEndian.PutUint16(buf[cursor:cursor+2], h.Port)
	cursor += 2
	buf[cursor] = byte(h.Addr.typ)
	cursor++
	copy(buf[cursor:], addrBytes)
	return buf
}

// ReadHeader decodes a Header previously written with Marshal.
func ReadHeader(r io.Reader) (Header, error) {
	var lenBuf [3]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Header{}, fmt.Errorf("read header length: %w", err)
	}
	version := lenBuf[0]
	totalLen := binary.BigEndian.Uint16(lenBuf[1:])
	if int(totalLen) < headerFixedLen {
		return Header{}, fmt.Errorf("header too short: %d", totalLen)
	}

	body := make([]byte, int(totalLen)-3)
	if _, err := io.ReadFull(r, body); err != nil {
		return Header{}, fmt.Errorf("read header body: %w", err)
	}

	cursor := 0
	protocol := body[cursor]
	cursor++
	port := binary.BigEndian.Uint16(body[cursor : cursor+2])
	cursor += 2
	addrType := AddrType(body[cursor])
	cursor++

	return Header{
		Version:  version,
		Protocol: protocol,
		Port:     port,
		Addr:     addrFromBytes(addrType, body[cursor:]),
	}, nil
}

// AckCode reports whether the in-cluster pod could reach the requested
// destination.
type AckCode byte

const (
	AckOK AckCode = iota + 1
	AckUnknownError
	AckNoSuchHost
	AckConnectTimeout
)

func (c AckCode) Error() string {
	switch c {
	case AckOK:
		return "ok"
	case AckNoSuchHost:
		return "no such host"
	case AckConnectTimeout:
		return "connect timeout"
	default:
		return "unknown error"
	}
}

// Acknowledgement is the one-byte reply to a Header.
type Acknowledgement struct {
	Code AckCode
}

func (a Acknowledgement) Marshal() []byte {
	return []byte{byte(a.Code)}
}

// ReadAck decodes an Acknowledgement previously written with Marshal.
func ReadAck(r io.Reader) (Acknowledgement, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Acknowledgement{}, fmt.Errorf("read ack: %w", err)
	}
	return Acknowledgement{Code: AckCode(buf[0])}, nil
}
