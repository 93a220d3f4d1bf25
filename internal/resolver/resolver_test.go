package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	corev1 "k8s.io/api/core/v1"
)

func podWithPort(name string, port int32) *corev1.Pod {
	return &corev1.Pod{
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{
				{Ports: []corev1.ContainerPort{{Name: name, ContainerPort: port}}},
			},
		},
	}
}

func TestResolveNumericPassthrough(t *testing.T) {
	got, err := Resolve(&corev1.Pod{}, "8080")
	assert.NoError(t, err)
	assert.Equal(t, uint16(8080), got)
}

func TestResolveNamedPort(t *testing.T) {
	pod := podWithPort("http", 8080)
	got, err := Resolve(pod, "http")
	assert.NoError(t, err)
	assert.Equal(t, uint16(8080), got)
}

func TestResolveNamedPortNotFound(t *testing.T) {
	pod := podWithPort("http", 8080)
	_, err := Resolve(pod, "grpc")
	assert.Error(t, err)
}
