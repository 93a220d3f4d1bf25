package pool

import "errors"

var (
	// ErrNoReadyPod is returned when the pool has no target pod to dial.
	ErrNoReadyPod = errors.New("no ready pod")
	// ErrPortNotFound is returned when the configured remote port name
	// cannot be resolved against the target pod's container spec.
	ErrPortNotFound = errors.New("port name not found")
	// ErrStreamUnavailable is returned when a session exists but a data
	// stream could not be created on it.
	ErrStreamUnavailable = errors.New("stream unavailable")
)
