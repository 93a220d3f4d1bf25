package netmonitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/hcavarsan/kftray-sub001/pkg/constants"
)

// runHealthChecks probes every active rule's listener on a fixed cadence,
// confirming a suspected failure once more before restarting it.
func (m *Monitor) runHealthChecks(ctx context.Context) {
	ticker := time.NewTicker(constants.NetworkHealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.healthInFlight.tryAcquire() {
				continue
			}
			m.checkHealth(ctx)
			m.healthInFlight.release()
		}
	}
}

func (m *Monitor) checkHealth(ctx context.Context) {
	if m.source == nil {
		return
	}
	active := m.source.ActiveRules()
	if len(active) == 0 {
		return
	}

	suspects := probeRules(active)
	if len(suspects) == 0 {
		return
	}

	var confirmed []RuleSnapshot
	for _, r := range suspects {
		if !sleepCtx(ctx, constants.HealthProbeConfirmWait) {
			return
		}
		if !isRuleAlive(r.LocalAddress, r.LocalPort) {
			confirmed = append(confirmed, r)
		}
	}
	if len(confirmed) == 0 {
		return
	}

	slog.Info("restarting failed rules", slog.Int("count", len(confirmed)))
	if m.restarter != nil {
		m.restartByProtocol(ctx, confirmed)
	}
}

// probeRules checks every rule concurrently and returns those that appear
// dead on the first pass.
func probeRules(rules []RuleSnapshot) []RuleSnapshot {
	type result struct {
		rule  RuleSnapshot
		alive bool
	}
	out := make(chan result, len(rules))
	var wg sync.WaitGroup
	for _, r := range rules {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			out <- result{rule: r, alive: isRuleAlive(r.LocalAddress, r.LocalPort)}
		}()
	}
	wg.Wait()
	close(out)

	var suspects []RuleSnapshot
	for res := range out {
		if !res.alive {
			suspects = append(suspects, res.rule)
		}
	}
	return suspects
}

// isRuleAlive reports whether a rule's listener is still bound: binding
// EADDRINUSE means something (the rule's own listener) already holds the
// port, a successful bind means the listener is gone.
func isRuleAlive(address string, port uint16) bool {
	if address == "" {
		address = "127.0.0.1"
	}
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", address, port))
	if err == nil {
		ln.Close()
		return false
	}

	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	slog.Debug("rule health probe bind failed", slog.String(constants.LogFieldLocalAddr, address))
	return false
}
