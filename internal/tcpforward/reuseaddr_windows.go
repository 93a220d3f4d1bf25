//go:build windows

package tcpforward

import "syscall"

// reuseAddrControl is a no-op on Windows: SO_REUSEADDR has different (and
// looser) semantics there and isn't needed for loopback-alias binding.
func reuseAddrControl(_, _ string, _ syscall.RawConn) error {
	return nil
}
