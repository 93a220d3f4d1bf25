// Package netmonitor watches external reachability and per-rule listener
// health, and drives a fleet-wide reconnect when either signals a recovery.
//
// Grounded on original_source/crates/kftray-network-monitor/src/monitor.rs
// for the two-cadence design (liveness probe, per-rule health probe) and the
// interface-fingerprint sampling; the per-rule bind-means-dead probe is the
// teacher's own `bind` idiom turned inside out (the teacher's pkg/ports
// parser treats a refused bind as "in use", this package treats a
// *successful* bind on a forwarded port as "the listener died").
package netmonitor

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hcavarsan/kftray-sub001/pkg/constants"
	slogutil "github.com/hcavarsan/kftray-sub001/pkg/slog"
)

// RuleSnapshot is the subset of a running rule the monitor needs to probe
// and, on failure, ask to be restarted.
type RuleSnapshot struct {
	ConfigID     int64
	Protocol     string
	LocalAddress string
	LocalPort    uint16
}

// Source supplies the set of currently-running rules. The orchestrator
// implements this once it exists; it is kept as an interface here so this
// package never imports the orchestrator.
type Source interface {
	ActiveRules() []RuleSnapshot
}

// Restarter restarts a batch of rules sharing one protocol, with a fresh
// HTTP-logger state, mirroring the original's restart_batch grouping.
type Restarter interface {
	RestartBatch(ctx context.Context, protocol string, configIDs []int64) error
}

// Options configures a Monitor. Endpoints defaults to constants.NetworkEndpoints.
type Options struct {
	Source    Source
	Restarter Restarter
	Notifier  *Notifier
	Endpoints []string
}

type Monitor struct {
	source    Source
	restarter Restarter
	notifier  *Notifier
	endpoints []string

	healthInFlight boolFlag

	metrics *metrics
}

type metrics struct {
	up        prometheus.Gauge
	reconnect prometheus.Counter
}

func newMetrics() *metrics {
	return &metrics{
		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kftray_network_up",
			Help: "1 when the liveness probe last succeeded, 0 otherwise.",
		}),
		reconnect: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kftray_network_reconnects_total",
			Help: "Fleet reconnects triggered by the network monitor.",
		}),
	}
}

func New(opts Options) *Monitor {
	endpoints := opts.Endpoints
	if len(endpoints) == 0 {
		endpoints = constants.NetworkEndpoints[:]
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = NewNotifier()
	}
	return &Monitor{
		source:    opts.Source,
		restarter: opts.Restarter,
		notifier:  notifier,
		endpoints: endpoints,
		metrics:   newMetrics(),
	}
}

// Notifier exposes the reconnect broadcast primitive so callers can wire it
// into forwarders independently of this Monitor's own lifecycle.
func (m *Monitor) Notifier() *Notifier { return m.notifier }

// Collect registers this monitor's Prometheus gauges/counters on reg.
func (m *Monitor) Collect(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.metrics.up, m.metrics.reconnect} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Run blocks until ctx is canceled, driving the liveness loop, the per-rule
// health-check cadence, and the interface-fingerprint sampler concurrently.
func (m *Monitor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); m.runLiveness(ctx) }()
	go func() { defer wg.Done(); m.runHealthChecks(ctx) }()
	go func() { defer wg.Done(); m.runFingerprint(ctx) }()
	wg.Wait()
}

func (m *Monitor) runLiveness(ctx context.Context) {
	up := m.probeLiveness(ctx)
	m.setUp(up)
	failures := 0

	for {
		if !sleepCtx(ctx, livenessInterval(up, failures)) {
			return
		}

		isUp := m.probeLiveness(ctx)

		switch {
		case !up && isUp:
			slog.Info("network reconnected")
			failures = 0
			m.handleReconnect(ctx)
		case up && !isUp:
			slog.Info("network disconnected")
			failures++
		}

		up = isUp
		m.setUp(up)
	}
}

func (m *Monitor) setUp(up bool) {
	if up {
		m.metrics.up.Set(1)
	} else {
		m.metrics.up.Set(0)
	}
}

func livenessInterval(up bool, failures int) time.Duration {
	switch {
	case up && failures == 0:
		return constants.NetworkLivenessUpWait
	case up:
		return constants.NetworkProbeTimeout
	default:
		return constants.HealthProbeConfirmWait
	}
}

// probeLiveness dials every endpoint concurrently and reports true on the
// first success, bounded overall by ReconnectSettleDelay so a single hung
// dial can't stall the loop past one tick.
func (m *Monitor) probeLiveness(ctx context.Context) bool {
	results := make(chan bool, len(m.endpoints))
	for _, ep := range m.endpoints {
		ep := ep
		go func() {
			d := net.Dialer{Timeout: constants.NetworkProbeTimeout}
			conn, err := d.DialContext(ctx, "tcp", ep)
			if err != nil {
				results <- false
				return
			}
			conn.Close()
			results <- true
		}()
	}

	deadline := time.NewTimer(constants.ReconnectSettleDelay)
	defer deadline.Stop()
	for i := 0; i < len(m.endpoints); i++ {
		select {
		case ok := <-results:
			if ok {
				return true
			}
		case <-deadline.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
	return false
}

func (m *Monitor) handleReconnect(ctx context.Context) {
	if !m.notifier.TryBeginReconnect() {
		return
	}
	defer m.notifier.FinishReconnect()

	if m.source == nil || m.restarter == nil {
		return
	}
	active := m.source.ActiveRules()
	if len(active) == 0 {
		return
	}

	m.notifier.Broadcast()
	m.metrics.reconnect.Inc()
	if !sleepCtx(ctx, constants.ReconnectSettleDelay) {
		return
	}

	m.restartByProtocol(ctx, active)
}

func (m *Monitor) restartByProtocol(ctx context.Context, rules []RuleSnapshot) {
	byProtocol := make(map[string][]int64)
	for _, r := range rules {
		byProtocol[r.Protocol] = append(byProtocol[r.Protocol], r.ConfigID)
	}
	for protocol, ids := range byProtocol {
		if err := m.restarter.RestartBatch(ctx, protocol, ids); err != nil {
			slog.Error("restart batch failed", slogutil.Error(err), slog.String(constants.LogFieldProtocol, protocol))
		}
	}
}

// sleepCtx sleeps for d or returns false early if ctx is canceled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// boolFlag is a tiny atomic-ish overlap guard, simpler than the original's
// mutex+bool TaskState since this package has no other state to protect
// alongside it.
type boolFlag struct {
	mu  sync.Mutex
	set bool
}

func (f *boolFlag) tryAcquire() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set {
		return false
	}
	f.set = true
	return true
}

func (f *boolFlag) release() {
	f.mu.Lock()
	f.set = false
	f.mu.Unlock()
}
