package settings

import (
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcavarsan/kftray-sub001/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "kftray.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs, v)
	require.NoError(t, fs.Parse(nil))
	return v
}

func TestLoadReturnsDefaultsWithEmptyStore(t *testing.T) {
	s := newTestStore(t)
	v := newTestViper(t)

	got, err := Load(v, s)
	require.NoError(t, err)
	assert.Equal(t, defaults(), got)
}

func TestLoadPrefersStoredValueOverDefault(t *testing.T) {
	s := newTestStore(t)
	v := newTestViper(t)
	require.NoError(t, s.SetSetting("pool_size", "25"))

	got, err := Load(v, s)
	require.NoError(t, err)
	assert.Equal(t, 25, got.PoolSize)
}

func TestLoadPrefersExplicitFlagOverStoredValue(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.SetSetting("pool_size", "25"))

	v := viper.New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs, v)
	require.NoError(t, fs.Parse([]string{"--pool-size=7"}))

	got, err := Load(v, s)
	require.NoError(t, err)
	assert.Equal(t, 7, got.PoolSize)
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	s := newTestStore(t)
	v := newTestViper(t)

	cur := Settings{NetworkMonitor: false, DisconnectTimeoutMinute: 15, LogVerbosity: 5, PoolSize: 20}
	require.NoError(t, Save(s, cur))

	got, err := Load(v, s)
	require.NoError(t, err)
	assert.Equal(t, cur, got)
}
