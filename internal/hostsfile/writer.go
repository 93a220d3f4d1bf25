package hostsfile

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	slogutil "github.com/hcavarsan/kftray-sub001/pkg/slog"
)

// writeLines persists lines atomically: copy the current file aside, write
// the new content to the copy, then rename over the original. A non-root
// process that cannot rename over a protected hosts file (Windows ACLs, a
// read-only /etc on some containers) falls back to a direct truncate-write.
func (m *Manager) writeLines(lines []string) error {
	content := renderLines(lines)

	if err := m.tryAtomicWrite(content); err != nil {
		slog.Debug("hosts file atomic write failed, falling back to direct write", slogutil.Error(err))
		return m.writeDirect(content)
	}
	return nil
}

func renderLines(lines []string) []byte {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func (m *Manager) tryAtomicWrite(content []byte) error {
	tmpPath := m.path + ".tmp" + strconv.FormatInt(time.Now().UnixMilli(), 10)

	if err := m.copyFile(m.path, tmpPath); err != nil {
		return fmt.Errorf("stage temp file: %w", err)
	}
	if err := m.writeFile(tmpPath, content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := m.fs.Rename(tmpPath, m.path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func (m *Manager) copyFile(src, dst string) error {
	info, err := m.fs.Stat(src)
	mode := os.FileMode(0o644)
	if err == nil {
		mode = info.Mode()
	}

	in, err := m.fs.OpenFile(src, os.O_CREATE|os.O_RDONLY, mode)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := m.fs.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func (m *Manager) writeFile(path string, content []byte) error {
	f, err := m.fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(content)
	return err
}

func (m *Manager) writeDirect(content []byte) error {
	return m.writeFile(m.path, content)
}
