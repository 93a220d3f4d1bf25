// Package hostshelper is the client side of the external hosts-editing
// helper protocol: a length-prefixed JSON request/response exchange over a
// local stream socket. The privileged helper process itself is a Non-goal;
// this package only encodes requests and decodes responses, framed the way
// internal/udpforward frames its own stream messages (a big-endian u32
// length prefix ahead of the payload).
package hostshelper

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hcavarsan/kftray-sub001/pkg/constants"
)

const lengthPrefixSize = 4

// maxFrameSize bounds a single request/response frame; the helper protocol
// carries small JSON payloads only (a handful of hostnames per call).
const maxFrameSize = 1 << 20

// Action enumerates the payload kinds a Request can carry.
type Action string

const (
	ActionAddEntry    Action = "add_entry"
	ActionRemoveEntry Action = "remove_entry"
	ActionListEntries Action = "list_entries"
	ActionClear       Action = "clear"
)

// Request is one call to the helper, authenticated by AppID/Timestamp per
// the original project's kftray-helper/src/auth.rs validation.
type Request struct {
	AppID     string `json:"app_id"`
	Timestamp int64  `json:"timestamp"`
	Action    Action `json:"action"`
	ID        int64  `json:"id,omitempty"`
	IP        string `json:"ip,omitempty"`
	Hostname  string `json:"hostname,omitempty"`
}

// Response is the helper's reply to a Request.
type Response struct {
	OK      bool     `json:"ok"`
	Error   string   `json:"error,omitempty"`
	Entries []string `json:"entries,omitempty"`
}

func writeFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if len(payload) > maxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", len(payload))
	}
	header := make([]byte, lengthPrefixSize)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

func readFrame(r io.Reader, v any) error {
	header := make([]byte, lengthPrefixSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return err
	}
	length := binary.BigEndian.Uint32(header)
	if length > maxFrameSize {
		return fmt.Errorf("frame too large: %d bytes", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return err
	}
	return json.Unmarshal(payload, v)
}

// newRequest stamps app_id and the current timestamp, the two fields the
// helper's validate_request checks before looking at the action payload.
func newRequest(now int64, action Action) Request {
	return Request{AppID: constants.HelperAppID, Timestamp: now, Action: action}
}
