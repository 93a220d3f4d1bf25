package netmonitor

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcavarsan/kftray-sub001/pkg/constants"
)

type fakeSource struct {
	rules []RuleSnapshot
}

func (f *fakeSource) ActiveRules() []RuleSnapshot { return f.rules }

type fakeRestarter struct {
	mu    sync.Mutex
	calls map[string][]int64
}

func newFakeRestarter() *fakeRestarter {
	return &fakeRestarter{calls: make(map[string][]int64)}
}

func (f *fakeRestarter) RestartBatch(_ context.Context, protocol string, ids []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[protocol] = append(f.calls[protocol], ids...)
	return nil
}

func TestLivenessIntervalPicksCadenceByState(t *testing.T) {
	assert.Equal(t, constants.NetworkLivenessUpWait, livenessInterval(true, 0))
	assert.Equal(t, constants.NetworkProbeTimeout, livenessInterval(true, 2))
	assert.Equal(t, constants.HealthProbeConfirmWait, livenessInterval(false, 0))
}

func TestIsRuleAliveDetectsBoundPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	addr := ln.Addr().(*net.TCPAddr)
	assert.True(t, isRuleAlive("127.0.0.1", uint16(addr.Port)))
}

func TestIsRuleAliveDetectsFreedPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	assert.False(t, isRuleAlive("127.0.0.1", uint16(addr.Port)))
}

func TestHandleReconnectRestartsActiveRulesByProtocol(t *testing.T) {
	source := &fakeSource{rules: []RuleSnapshot{
		{ConfigID: 1, Protocol: constants.ProtocolTCP, LocalAddress: "127.0.0.1", LocalPort: 8001},
		{ConfigID: 2, Protocol: constants.ProtocolUDP, LocalAddress: "127.0.0.1", LocalPort: 8002},
	}}
	restarter := newFakeRestarter()
	m := New(Options{Source: source, Restarter: restarter})

	m.handleReconnect(context.Background())

	restarter.mu.Lock()
	defer restarter.mu.Unlock()
	assert.ElementsMatch(t, []int64{1}, restarter.calls[constants.ProtocolTCP])
	assert.ElementsMatch(t, []int64{2}, restarter.calls[constants.ProtocolUDP])
}

func TestHandleReconnectSkipsWhenAlreadyInFlight(t *testing.T) {
	restarter := newFakeRestarter()
	m := New(Options{Source: &fakeSource{}, Restarter: restarter})
	require.True(t, m.notifier.TryBeginReconnect())

	m.handleReconnect(context.Background())

	restarter.mu.Lock()
	defer restarter.mu.Unlock()
	assert.Empty(t, restarter.calls)
}

func TestNotifierBroadcastWakesWaiters(t *testing.T) {
	n := NewNotifier()
	waiter := n.C()

	done := make(chan struct{})
	go func() {
		<-waiter
		close(done)
	}()

	n.Broadcast()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken by Broadcast")
	}
}
