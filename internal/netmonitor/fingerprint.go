package netmonitor

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/hcavarsan/kftray-sub001/pkg/constants"
)

// runFingerprint samples the host's outbound local address every
// FingerprintInterval and triggers a fleet reconnect on any change, catching
// Wi-Fi<->Ethernet switches and VPN toggles that a liveness probe alone
// would miss since the internet stays reachable throughout.
func (m *Monitor) runFingerprint(ctx context.Context) {
	ticker := time.NewTicker(constants.FingerprintInterval)
	defer ticker.Stop()

	last := fingerprint()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			current := fingerprint()
			if current != last && current != "" {
				slog.Info("outbound interface changed, triggering reconnect")
				m.handleReconnect(ctx)
			}
			last = current
		}
	}
}

// fingerprint dials a UDP "connection" (no packet is ever sent, UDP connect
// just picks a route) and reports the local address the kernel would use,
// the cheapest portable way to observe the active outbound interface.
func fingerprint() string {
	conn, err := net.DialTimeout("udp", "8.8.8.8:80", constants.NetworkProbeTimeout)
	if err != nil {
		return ""
	}
	defer conn.Close()
	return conn.LocalAddr().String()
}
