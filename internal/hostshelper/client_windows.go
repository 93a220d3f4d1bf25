//go:build windows

package hostshelper

import (
	"context"
	"net"

	winio "github.com/Microsoft/go-winio"

	"github.com/hcavarsan/kftray-sub001/pkg/constants"
)

func defaultSocketPath() string {
	return `\\.\pipe\` + constants.HelperSocketName
}

func dial(ctx context.Context, addr string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, addr)
}
