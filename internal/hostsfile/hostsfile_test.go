package hostsfile

import (
	"net"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddWritesDelimitedBlock(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/hosts", []byte("127.0.0.1 localhost\n"), 0o644))

	m := New(fs, "/etc/hosts")
	m.Add(1, net.ParseIP("10.0.0.5"), "svc.local")

	require.Eventually(t, func() bool {
		data, err := afero.ReadFile(fs, "/etc/hosts")
		return err == nil && len(data) > 0 && strings.Contains(string(data), "svc.local")
	}, 2*time.Second, 10*time.Millisecond)

	data, err := afero.ReadFile(fs, "/etc/hosts")
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "127.0.0.1 localhost")
	assert.Contains(t, text, "# DO NOT EDIT kftray-hosts BEGIN")
	assert.Contains(t, text, "10.0.0.5 svc.local")
	assert.Contains(t, text, "# DO NOT EDIT kftray-hosts END")
}

func TestRemoveDropsEntryAndCollapsesEmptySection(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/hosts", []byte(""), 0o644))

	m := New(fs, "/etc/hosts")
	m.Add(1, net.ParseIP("10.0.0.5"), "svc.local")
	require.Eventually(t, func() bool {
		data, _ := afero.ReadFile(fs, "/etc/hosts")
		return strings.Contains(string(data), "svc.local")
	}, 2*time.Second, 10*time.Millisecond)

	m.Remove(1)
	require.Eventually(t, func() bool {
		data, _ := afero.ReadFile(fs, "/etc/hosts")
		return !strings.Contains(string(data), "svc.local")
	}, 2*time.Second, 10*time.Millisecond)

	data, err := afero.ReadFile(fs, "/etc/hosts")
	require.NoError(t, err)
	assert.NotContains(t, string(data), "# DO NOT EDIT kftray-hosts BEGIN")
	assert.NotContains(t, string(data), "# DO NOT EDIT kftray-hosts END")
}

func TestApplySectionUpdateRejectsPartialMarkers(t *testing.T) {
	s := newSection("kftray-hosts")
	lines := []string{"# DO NOT EDIT kftray-hosts BEGIN", "10.0.0.1 a"}

	_, _, err := applySectionUpdate(lines, s, nil)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestApplySectionUpdateNoopWhenUnchanged(t *testing.T) {
	s := newSection("kftray-hosts")
	existing := []string{
		"# DO NOT EDIT kftray-hosts BEGIN",
		"10.0.0.1 a",
		"# DO NOT EDIT kftray-hosts END",
	}
	updated, changed, err := applySectionUpdate(existing, s, []string{
		"# DO NOT EDIT kftray-hosts BEGIN",
		"10.0.0.1 a",
		"# DO NOT EDIT kftray-hosts END",
	})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, existing, updated)
}

func TestFormatGroupsHostnamesPerIPOnUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix-only formatting")
	}
	s := newSection("kftray-hosts")
	lines := s.format(map[string][]string{"10.0.0.1": {"a", "b"}})
	require.Len(t, lines, 3)
	assert.Equal(t, "10.0.0.1 a b", lines[1])
}
