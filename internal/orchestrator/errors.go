package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLocalAddress is returned when domain_enabled is set but
	// local_address does not parse as an IP.
	ErrInvalidLocalAddress = errors.New("invalid local address")
	// ErrProxyPodNotRunning is returned when the proxy workload pod for a
	// proxy/expose rule never reaches Running.
	ErrProxyPodNotRunning = errors.New("proxy workload pod not running")
	// ErrUnsupportedProtocol is returned for a (workload_type, protocol)
	// combination this module does not support (protocol = udp requires
	// workload_type ∈ {service, pod}, per the data model invariant).
	ErrUnsupportedProtocol = errors.New("unsupported protocol for workload type")
	// ErrRuleNotRunning is returned by Stop for an unknown or already-
	// stopped config id.
	ErrRuleNotRunning = errors.New("rule not running")
)

// RuleError pairs a rule's config id with the error that kept it from
// starting (or stopping cleanly), the element type of Start's accumulated
// error list per SPEC_FULL §4.10/§7.
type RuleError struct {
	ConfigID int64
	Err      error
}

func (e RuleError) Error() string {
	return fmt.Sprintf("config %d: %v", e.ConfigID, e.Err)
}

func (e RuleError) Unwrap() error { return e.Err }
