package ports

import (
	"strings"

	corev1 "k8s.io/api/core/v1"
)

type portsInObject struct {
	Names     map[string]portWithProtocol
	Protocols map[uint16][]string
}

type portWithProtocol struct {
	Port     uint16
	Protocol string
}

func getPortsFromPodSpec(podSpec *corev1.PodSpec) portsInObject {
	ret := portsInObject{
		Names:     map[string]portWithProtocol{},
		Protocols: map[uint16][]string{},
	}
	for _, ct := range podSpec.Containers {
		for _, ctPort := range ct.Ports {
			po := uint16(ctPort.ContainerPort)
			proto := strings.ToLower(string(ctPort.Protocol))
			ret.Names[ctPort.Name] = portWithProtocol{
				Port:     po,
				Protocol: proto,
			}
			ret.Protocols[po] = append(ret.Protocols[po], proto)
		}
	}
	return ret
}
