package httplogger

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/afero"

	slogutil "github.com/hcavarsan/kftray-sub001/pkg/slog"
)

// cleanupLoop runs once every 24 hours: it rotates l's log file once it
// exceeds maxFileSize bytes (renaming it aside with a timestamp suffix)
// and, when autoCleanup is true, removes every file in the log file's
// directory whose modification time is older than retentionDays, whether
// or not it is a rotated file.
func (l *Logger) cleanupLoop(ctx context.Context, maxFileSize int64, retentionDays int, autoCleanup bool) {
	if retentionDays <= 0 {
		retentionDays = 1
	}
	interval := time.Duration(retentionDays) * 24 * time.Hour
	if interval > 24*time.Hour {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.rotateIfOversize(maxFileSize)
			if autoCleanup {
				l.pruneOld(retentionDays)
			}
		}
	}
}

func (l *Logger) rotateIfOversize(maxFileSize int64) {
	if maxFileSize <= 0 {
		return
	}
	info, err := l.fs.Stat(l.logPath)
	if err != nil {
		return
	}
	if info.Size() <= maxFileSize {
		return
	}
	rotated := l.logPath + "." + time.Now().UTC().Format("20060102T150405")
	if err := l.fs.Rename(l.logPath, rotated); err != nil {
		slog.Warn("http logger: rotate failed", slogutil.Error(err))
	}
}

func (l *Logger) pruneOld(retentionDays int) {
	dir := l.logPath[:lastSlash(l.logPath)+1]
	entries, err := afero.ReadDir(l.fs, dir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	for _, entry := range entries {
		if entry.ModTime().Before(cutoff) {
			_ = l.fs.Remove(dir + entry.Name())
		}
	}
}

func lastSlash(path string) int {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return i
		}
	}
	return -1
}
