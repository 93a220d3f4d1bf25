package ports

import (
	"fmt"

	corev1 "k8s.io/api/core/v1"
)

// ErrPortNotFound is returned by ResolveNamedPort when no container in podSpec
// exposes a port with the requested name.
var ErrPortNotFound = fmt.Errorf("port name not found")

// ResolveNamedPort returns the numeric container port exposed under name by
// any container in pod, the idiomatic equivalent of "remote_port resolved
// from the target pod's container spec". Numeric ports never need this path;
// callers should call it only when the configured remote port is a name.
func ResolveNamedPort(pod *corev1.Pod, name string) (uint16, error) {
	all := getPortsFromPodSpec(&pod.Spec)
	port, ok := all.Names[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrPortNotFound, name)
	}
	return port.Port, nil
}
