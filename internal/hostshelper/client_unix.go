//go:build !windows

package hostshelper

import (
	"context"
	"net"
	"path/filepath"

	"github.com/hcavarsan/kftray-sub001/pkg/constants"
)

func defaultSocketPath() string {
	return filepath.Join("/var/run", constants.HelperSocketName+".sock")
}

func dial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", addr)
}
