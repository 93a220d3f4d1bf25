// Package resolver adapts pkg/ports' named-port resolution (originally
// shaped around CLI-argument parsing) to the live-pod-shaped resolution the
// pool needs: given a Config's remote_port (numeric or named) and a
// concrete target pod, return the numeric container port.
package resolver

import (
	"strconv"

	corev1 "k8s.io/api/core/v1"

	"github.com/hcavarsan/kftray-sub001/pkg/ports"
)

// Resolve returns the numeric remote port for cfg's remotePort against pod.
// Numeric strings pass through unchanged; anything else is resolved as a
// container port name.
func Resolve(pod *corev1.Pod, remotePort string) (uint16, error) {
	if n, err := strconv.ParseUint(remotePort, 10, 16); err == nil {
		return uint16(n), nil
	}
	return ports.ResolveNamedPort(pod, remotePort)
}
