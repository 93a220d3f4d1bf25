// Package hostsfile maintains a single delimited block of (ip, hostname)
// entries inside the OS hosts file, coalescing rapid edits into one write.
//
// Grounded on original_source/crates/kftray-commons/src/utils/hostsfile.rs
// for the section-marker and atomic-write scheme, and on the teacher's
// pkg/alarm.Alarm debounce primitive (originally used by pkg/xnet.ProxyUDP
// to detect an idle UDP session) reused here for its "reset on every edit,
// fire once idle" shape and its poll-Done idiom.
package hostsfile

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/hcavarsan/kftray-sub001/pkg/alarm"
	"github.com/hcavarsan/kftray-sub001/pkg/constants"
	slogutil "github.com/hcavarsan/kftray-sub001/pkg/slog"
)

// ErrMalformed is returned when the hosts file carries only one of the two
// section markers.
var ErrMalformed = errors.New("hostsfile: malformed section markers")

// ErrUnsupportedPlatform is returned by DefaultPath on a GOOS this package
// does not know the hosts file location for.
var ErrUnsupportedPlatform = errors.New("hostsfile: unsupported platform")

const debouncePoll = 10 * time.Millisecond

type ruleEntry struct {
	ip       net.IP
	hostname string
}

// Manager coalesces Add/Remove/Clear edits over a debounce window and
// persists the result as a single marked block in the target hosts file.
type Manager struct {
	fs   afero.Fs
	path string
	tag  string

	mu      sync.Mutex
	entries map[int64]ruleEntry
	active  *alarm.Alarm

	dirty chan struct{}
}

// New constructs a Manager writing to path on fs. Callers own its lifetime;
// there is no Close, since a debounced write that loses its goroutine mid-
// window would silently drop an edit.
func New(fs afero.Fs, path string) *Manager {
	m := &Manager{
		fs:      fs,
		path:    path,
		tag:     constants.HostsSectionTag,
		entries: make(map[int64]ruleEntry),
		dirty:   make(chan struct{}, 1),
	}
	go m.run()
	return m
}

var (
	defaultOnce sync.Once
	defaultMgr  *Manager
)

// Default returns the process-wide singleton backed by the real OS hosts
// file, constructing it on first use.
func Default() (*Manager, error) {
	var err error
	defaultOnce.Do(func() {
		var path string
		path, err = DefaultPath()
		if err != nil {
			return
		}
		defaultMgr = New(afero.NewOsFs(), path)
	})
	if err != nil {
		return nil, err
	}
	return defaultMgr, nil
}

// DefaultPath returns the platform's hosts file location.
func DefaultPath() (string, error) {
	switch runtime.GOOS {
	case "windows":
		winDir := os.Getenv("WinDir")
		if winDir == "" {
			return "", fmt.Errorf("%w: WinDir not set", ErrUnsupportedPlatform)
		}
		return winDir + `\System32\Drivers\Etc\hosts`, nil
	default:
		return "/etc/hosts", nil
	}
}

// Add records (or replaces) the (ip, hostname) pair owned by id.
func (m *Manager) Add(id int64, ip net.IP, hostname string) {
	m.mu.Lock()
	m.entries[id] = ruleEntry{ip: ip, hostname: hostname}
	m.mu.Unlock()
	m.markDirty()
}

// Remove drops the entry owned by id, if any.
func (m *Manager) Remove(id int64) {
	m.mu.Lock()
	_, ok := m.entries[id]
	delete(m.entries, id)
	m.mu.Unlock()
	if ok {
		m.markDirty()
	}
}

// Clear drops every entry.
func (m *Manager) Clear() {
	m.mu.Lock()
	empty := len(m.entries) == 0
	m.entries = make(map[int64]ruleEntry)
	m.mu.Unlock()
	if !empty {
		m.markDirty()
	}
}

// markDirty (re)starts the debounce window and wakes the writer goroutine.
func (m *Manager) markDirty() {
	m.mu.Lock()
	if m.active == nil || m.active.Done() {
		a := alarm.New(constants.HostsDebounceWindow)
		a.Start()
		m.active = &a
	} else {
		m.active.Reset()
	}
	m.mu.Unlock()

	select {
	case m.dirty <- struct{}{}:
	default:
	}
}

func (m *Manager) run() {
	for range m.dirty {
		m.waitQuiet()
		if err := m.flush(); err != nil {
			slog.Error("hosts file write failed, rule stays up in degraded mode", slogutil.Error(err))
		}
	}
}

func (m *Manager) waitQuiet() {
	ticker := time.NewTicker(debouncePoll)
	defer ticker.Stop()
	for {
		m.mu.Lock()
		a := m.active
		m.mu.Unlock()
		if a == nil {
			return
		}
		if a.Done() {
			m.mu.Lock()
			m.active = nil
			m.mu.Unlock()
			return
		}
		<-ticker.C
	}
}

// groupedEntries returns hostnames grouped by IP. The map is unordered;
// sortedIPs puts its keys in IP byte order (matching the
// BTreeMap<IpAddr, _> ordering the original kept).
func (m *Manager) groupedEntries() map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	grouped := make(map[string][]string)
	for _, e := range m.entries {
		key := e.ip.String()
		grouped[key] = append(grouped[key], e.hostname)
	}
	return grouped
}

func sortedIPs(grouped map[string][]string) []string {
	ips := make([]string, 0, len(grouped))
	for ip := range grouped {
		ips = append(ips, ip)
	}
	sort.Slice(ips, func(i, j int) bool {
		a, b := net.ParseIP(ips[i]), net.ParseIP(ips[j])
		if a == nil || b == nil {
			return ips[i] < ips[j]
		}
		return compareIP(a, b) < 0
	})
	return ips
}

func compareIP(a, b net.IP) int {
	a16, b16 := a.To16(), b.To16()
	for i := range a16 {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

func (m *Manager) flush() error {
	lines, err := m.readLines()
	if err != nil {
		return fmt.Errorf("read hosts file: %w", err)
	}

	section := newSection(m.tag)
	newLines := section.format(m.groupedEntries())

	updated, changed, err := applySectionUpdate(lines, section, newLines)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return m.writeLines(updated)
}

func (m *Manager) readLines() ([]string, error) {
	f, err := m.fs.OpenFile(m.path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
