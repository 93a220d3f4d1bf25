package hostshelper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrHelperUnavailable is returned when the helper's socket cannot be
// reached at all.
var ErrHelperUnavailable = errors.New("hosts helper unavailable")

// Client talks to the external hosts-editing helper over its local stream
// socket. The zero value is not usable; construct with New or NewAt.
type Client struct {
	addr    string
	timeout time.Duration
}

// New constructs a Client pointed at the platform default socket/pipe.
func New() *Client {
	return &Client{addr: defaultSocketPath(), timeout: 2 * time.Second}
}

// NewAt constructs a Client pointed at an explicit socket/pipe address,
// for tests.
func NewAt(addr string) *Client {
	return &Client{addr: addr, timeout: 2 * time.Second}
}

// Available reports whether the helper's socket can currently be reached.
func (c *Client) Available(ctx context.Context) bool {
	conn, err := dial(ctx, c.addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// AddEntry asks the helper to add (or replace) a hosts entry for id.
func (c *Client) AddEntry(ctx context.Context, id int64, ip net.IP, hostname string) error {
	req := newRequest(time.Now().UTC().Unix(), ActionAddEntry)
	req.ID = id
	req.IP = ip.String()
	req.Hostname = hostname
	_, err := c.call(ctx, req)
	return err
}

// RemoveEntry asks the helper to remove the hosts entry for id.
func (c *Client) RemoveEntry(ctx context.Context, id int64) error {
	req := newRequest(time.Now().UTC().Unix(), ActionRemoveEntry)
	req.ID = id
	_, err := c.call(ctx, req)
	return err
}

// ListEntries returns the hosts lines the helper currently manages on this
// module's behalf.
func (c *Client) ListEntries(ctx context.Context) ([]string, error) {
	req := newRequest(time.Now().UTC().Unix(), ActionListEntries)
	resp, err := c.call(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Clear asks the helper to remove every entry it manages on this module's
// behalf.
func (c *Client) Clear(ctx context.Context) error {
	req := newRequest(time.Now().UTC().Unix(), ActionClear)
	_, err := c.call(ctx, req)
	return err
}

func (c *Client) call(ctx context.Context, req Request) (Response, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := dial(dialCtx, c.addr)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrHelperUnavailable, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(c.timeout))
	}

	if err := writeFrame(conn, req); err != nil {
		return Response{}, fmt.Errorf("write request: %w", err)
	}
	var resp Response
	if err := readFrame(conn, &resp); err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	if !resp.OK {
		return Response{}, fmt.Errorf("helper rejected request: %s", resp.Error)
	}
	return resp, nil
}
