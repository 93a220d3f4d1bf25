package store

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcavarsan/kftray-sub001/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kftray.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateGetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	id, err := s.Create(model.Config{
		Context:      "kind-kind",
		Namespace:    "default",
		WorkloadType: model.WorkloadService,
		Service:      "web",
		LocalPort:    8080,
		RemotePort:   "80",
		Protocol:     model.ProtocolTCP,
		Alias:        "web",
	})
	require.NoError(t, err)
	assert.NotZero(t, id)

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "web", got.Service)
	assert.Equal(t, uint16(8080), got.LocalPort)
	// defaults backfill fields untouched by the caller
	assert.Equal(t, model.ExposureCluster, got.ExposureType)
}

func TestGetUnknownReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateRequiresID(t *testing.T) {
	s := newTestStore(t)
	err := s.Update(model.Config{Service: "web"})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDeleteCascadesState(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create(model.Config{Service: "web", Protocol: model.ProtocolTCP})
	require.NoError(t, err)
	require.NoError(t, s.SetState(id, true, nil))

	require.NoError(t, s.Delete(id))

	states, err := s.ListStates()
	require.NoError(t, err)
	assert.Empty(t, states)

	_, err = s.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExportStripsSentinelsAndProjects(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(model.Config{
		WorkloadType: model.WorkloadPod,
		Target:       "app=web",
		Service:      sentinelService,
		LocalAddress: sentinelAddress,
		Protocol:     model.ProtocolTCP,
		LocalPort:    9090,
	})
	require.NoError(t, err)

	data, err := s.ExportJSON()
	require.NoError(t, err)

	var out []model.Config
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, 1)
	assert.Empty(t, out[0].Service)
	assert.Empty(t, out[0].LocalAddress)
	assert.Equal(t, "app=web", out[0].Target)
}

func TestImportIncrementalMergeUpdatesInPlace(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create(model.Config{
		Context: "kind-kind", Namespace: "default",
		WorkloadType: model.WorkloadService, Service: "web",
		LocalPort: 8080, RemotePort: "80", Protocol: model.ProtocolTCP,
		Alias: "web-old",
	})
	require.NoError(t, err)

	payload := []byte(`[{"context":"kind-kind","namespace":"default","workload_type":"service","service":"web","local_port":8080,"remote_port":"80","protocol":"tcp","alias":"web-new"}]`)
	require.NoError(t, s.ImportJSON(payload))

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "web-new", got.Alias)

	all, err := s.List()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestImportConflictingPortRejected(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(model.Config{
		Context: "kind-kind", Namespace: "default",
		WorkloadType: model.WorkloadService, Service: "web",
		LocalAddress: "127.0.0.1", LocalPort: 8080, Protocol: model.ProtocolTCP,
	})
	require.NoError(t, err)

	payload := []byte(`{"context":"kind-kind","namespace":"default","workload_type":"service","service":"other","local_address":"127.0.0.1","local_port":8080,"protocol":"tcp"}`)
	err = s.ImportJSON(payload)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestImportAcceptsStringBooleans(t *testing.T) {
	s := newTestStore(t)
	payload := []byte(`{"context":"kind-kind","service":"web","workload_type":"service","protocol":"tcp","domain_enabled":"true"}`)
	require.NoError(t, s.ImportJSON(payload))

	all, err := s.List()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.True(t, all[0].DomainEnabled)
}

func TestSettingsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.GetSetting("network_monitor")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetSetting("network_monitor", "true"))
	v, ok, err := s.GetSetting("network_monitor")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "true", v)
}

func TestHTTPLogsConfigRoundTrip(t *testing.T) {
	s := newTestStore(t)
	id, err := s.Create(model.Config{Service: "web", Protocol: model.ProtocolTCP})
	require.NoError(t, err)

	_, ok, err := s.GetHTTPLogsConfig(id)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetHTTPLogsConfig(model.HTTPLogsConfig{
		ConfigID: id, Enabled: true, MaxFileSize: 1024, RetentionDays: 7, AutoCleanup: true,
	}))

	cfg, ok, err := s.GetHTTPLogsConfig(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, cfg.Enabled)
	assert.EqualValues(t, 1024, cfg.MaxFileSize)
}
