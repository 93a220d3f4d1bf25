//go:build !windows

package hostshelper

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHelper is a minimal stand-in for the privileged helper process,
// enough to exercise the client's framing and request construction without
// implementing real app_id/timestamp/peer-credential enforcement.
func fakeHelper(t *testing.T, handle func(Request) Response) string {
	t.Helper()
	addr := filepath.Join(t.TempDir(), "helper.sock")
	ln, err := net.Listen("unix", addr)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				var req Request
				if err := readFrame(conn, &req); err != nil {
					return
				}
				_ = writeFrame(conn, handle(req))
			}()
		}
	}()
	return addr
}

func TestAddEntrySendsStampedAppIDAndTimestamp(t *testing.T) {
	var seen Request
	addr := fakeHelper(t, func(req Request) Response {
		seen = req
		return Response{OK: true}
	})

	c := NewAt(addr)
	before := time.Now().Unix()
	err := c.AddEntry(context.Background(), 5, net.ParseIP("127.0.0.1"), "web.kftray.local")
	require.NoError(t, err)

	assert.Equal(t, "com.hcavarsan.kftray", seen.AppID)
	assert.Equal(t, ActionAddEntry, seen.Action)
	assert.Equal(t, int64(5), seen.ID)
	assert.Equal(t, "127.0.0.1", seen.IP)
	assert.Equal(t, "web.kftray.local", seen.Hostname)
	assert.GreaterOrEqual(t, seen.Timestamp, before)
}

func TestCallReturnsErrorOnRejectedResponse(t *testing.T) {
	addr := fakeHelper(t, func(Request) Response {
		return Response{OK: false, Error: "invalid app_id"}
	})

	c := NewAt(addr)
	err := c.RemoveEntry(context.Background(), 1)
	assert.ErrorContains(t, err, "invalid app_id")
}

func TestListEntriesReturnsHelperEntries(t *testing.T) {
	addr := fakeHelper(t, func(Request) Response {
		return Response{OK: true, Entries: []string{"127.0.0.1 web.kftray.local"}}
	})

	c := NewAt(addr)
	entries, err := c.ListEntries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1 web.kftray.local"}, entries)
}

func TestAvailableFalseWhenSocketMissing(t *testing.T) {
	c := NewAt(filepath.Join(t.TempDir(), "does-not-exist.sock"))
	assert.False(t, c.Available(context.Background()))
}

func TestAvailableTrueWhenSocketListening(t *testing.T) {
	addr := fakeHelper(t, func(Request) Response { return Response{OK: true} })
	c := NewAt(addr)
	assert.True(t, c.Available(context.Background()))
}
