package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcavarsan/kftray-sub001/internal/model"
	"github.com/hcavarsan/kftray-sub001/internal/store"
)

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "kftray.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(Options{Store: s, LogDir: t.TempDir()})
}

func TestRuleKeyFormat(t *testing.T) {
	cfg := model.Config{ID: 7, WorkloadType: model.WorkloadService, Service: "web"}
	assert.Equal(t, "7_web", ruleKey(cfg))
}

func TestStartRejectsUDPForProxyWorkload(t *testing.T) {
	o := newTestOrchestrator(t)
	cfg := model.Config{ID: 1, WorkloadType: model.WorkloadProxy, Protocol: model.ProtocolUDP}

	err := o.startRule(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnsupportedProtocol)
}

func TestStartRejectsUDPForExposeWorkload(t *testing.T) {
	o := newTestOrchestrator(t)
	cfg := model.Config{ID: 2, WorkloadType: model.WorkloadExpose, Protocol: model.ProtocolUDP}

	err := o.startRule(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrUnsupportedProtocol)
}

func TestStopUnknownRuleReturnsErrRuleNotRunning(t *testing.T) {
	o := newTestOrchestrator(t)
	err := o.Stop(999)
	assert.ErrorIs(t, err, ErrRuleNotRunning)
}

func TestStopAllOnEmptyRegistryDoesNothing(t *testing.T) {
	o := newTestOrchestrator(t)
	assert.NotPanics(t, func() { o.StopAll() })
}

func TestActiveRulesEmptyRegistry(t *testing.T) {
	o := newTestOrchestrator(t)
	assert.Empty(t, o.ActiveRules())
}

func TestActiveRulesReflectsRegisteredRule(t *testing.T) {
	o := newTestOrchestrator(t)
	cfg := model.Config{ID: 3, Protocol: model.ProtocolTCP, LocalAddress: "127.0.0.1", LocalPort: 8080}

	o.mu.Lock()
	o.rules[ruleKey(cfg)] = &rule{cfg: cfg, actualPort: 8080, cancel: func() {}}
	o.mu.Unlock()

	snapshots := o.ActiveRules()
	require.Len(t, snapshots, 1)
	assert.Equal(t, cfg.ID, snapshots[0].ConfigID)
	assert.Equal(t, uint16(8080), snapshots[0].LocalPort)
}

func TestRestartBatchReportsStoreLookupFailure(t *testing.T) {
	o := newTestOrchestrator(t)
	err := o.RestartBatch(context.Background(), model.ProtocolTCP, []int64{42})
	assert.Error(t, err)
}

func TestEmitStateNeverBlocksWhenChannelFull(t *testing.T) {
	o := newTestOrchestrator(t)
	cfg := model.Config{ID: 1}

	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(o.states)+5; i++ {
			o.emitState(cfg, true)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emitState blocked on a full channel")
	}
}

func TestStartErrorsAreRuleErrors(t *testing.T) {
	o := newTestOrchestrator(t)
	configs := []model.Config{
		{ID: 1, WorkloadType: model.WorkloadExpose, Protocol: model.ProtocolUDP},
	}

	succeeded, errs := o.Start(context.Background(), configs, model.ProtocolUDP)
	assert.Empty(t, succeeded)
	require.Len(t, errs, 1)
	assert.Equal(t, int64(1), errs[0].ConfigID)
	assert.ErrorIs(t, errs[0].Err, ErrUnsupportedProtocol)
}

func TestStartSkipsConfigsWithMismatchedProtocol(t *testing.T) {
	o := newTestOrchestrator(t)
	configs := []model.Config{
		{ID: 1, Protocol: model.ProtocolUDP},
	}

	succeeded, errs := o.Start(context.Background(), configs, model.ProtocolTCP)
	assert.Empty(t, succeeded)
	assert.Empty(t, errs)
}
