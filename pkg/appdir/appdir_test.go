package appdir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBPathPrefersAppConfigEnvVar(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("KFTRAY_CONFIG", dir)
	t.Setenv("XDG_CONFIG_HOME", "")

	path, err := DBPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "configs.db"), path)
}

func TestDirFallsBackToXDGConfigHome(t *testing.T) {
	t.Setenv("KFTRAY_CONFIG", "")
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	dir, err := Dir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(xdg, "kftray"), dir)
}

func TestLogDirIsCreatedUnderAppDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("KFTRAY_CONFIG", dir)

	logDir, err := LogDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "http_logs"), logDir)

	info, err := os.Stat(logDir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
