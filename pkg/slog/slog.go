package slog

import (
	"log/slog"
	"os"
	"strings"

	"k8s.io/klog/v2"
)

// Error returns an Attr for an error.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// Uint16 converts an uint16 to an uint64 and returns
// an Attr with that value.
func Uint16(key string, v uint16) slog.Attr {
	return slog.Uint64(key, uint64(v))
}

// MapVerbosityToLogLevel maps a kubectl-style -v verbosity level to a slog
// level, most verbose first.
func MapVerbosityToLogLevel(v int) slog.Level {
	switch {
	case v >= 4:
		return slog.LevelDebug
	case v >= 3:
		return slog.LevelInfo
	case v >= 2:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Init installs a text handler at the given verbosity as the default slog
// logger, and redirects klog (used internally by client-go's transport and
// rate limiters, exactly as the teacher's cmd/server does) into the same
// sink, at debug level, so a single log stream covers both this module's own
// logging and the k8s client plumbing it depends on.
func Init(verbosity int) {
	level := MapVerbosityToLogLevel(verbosity)
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	klog.SetOutput(&klogBridge{})
	klogFlags := klog.NewFlagSet("klog")
	_ = klogFlags.Set("logtostderr", "false")
	klog.InitFlags(klogFlags.FlagSet())
}

// klogBridge adapts klog's io.Writer-based output into slog.Debug lines.
type klogBridge struct{}

func (klogBridge) Write(p []byte) (int, error) {
	slog.Debug(strings.TrimRight(string(p), "\n"), slog.String("source", "klog"))
	return len(p), nil
}
