// Package httplogger parses HTTP/1.x traffic tapped off a forwarded TCP
// connection, pairs each request with its response by trace id, formats
// human-readable blocks, and persists them to a per-rule log file.
//
// Grounded on original_source/crates/kftray-portforward/src/http_logs/logging.rs
// for the parsing contract (completion signals, elision rules, block shape)
// and on the teacher's cmd/client/conntrack.go mutex+map pattern for the
// trace-pairing table, generalized from "channel of raw bytes per UDP
// session" to "TraceInfo per HTTP exchange".
package httplogger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"

	"github.com/hcavarsan/kftray-sub001/pkg/constants"
	slogutil "github.com/hcavarsan/kftray-sub001/pkg/slog"
)

// traceInfo is the bookkeeping kept between a request being observed and
// its response arriving.
type traceInfo struct {
	traceID   string
	startedAt time.Time
}

// Logger is one HTTP logger instance for a single (config_id, local_port)
// rule. It implements tcpforward.Tee.
type Logger struct {
	configID  int64
	localPort uint16
	maxBody   int64

	fs      afero.Fs
	logPath string

	traces sync.Map // connection id (string) -> *traceInfo

	entries chan logEntry
	done    chan struct{}

	metrics *metrics
}

type logEntry struct {
	isResponse bool
	text       string
}

type metrics struct {
	batches prometheus.Counter
	entries prometheus.Counter
	dropped prometheus.Counter
}

func newMetrics(configID int64, localPort uint16) *metrics {
	labels := prometheus.Labels{
		"config_id":  fmt.Sprintf("%d", configID),
		"local_port": fmt.Sprintf("%d", localPort),
	}
	return &metrics{
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "kftray_http_logger_batches_total",
			Help:        "HTTP logger batches flushed to disk.",
			ConstLabels: labels,
		}),
		entries: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "kftray_http_logger_entries_total",
			Help:        "HTTP logger entries written to disk.",
			ConstLabels: labels,
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "kftray_http_logger_dropped_total",
			Help:        "HTTP logger entries dropped because the write channel was full.",
			ConstLabels: labels,
		}),
	}
}

// Options configures rotation and retention; MaxBodySize defaults to
// constants.HTTPLogMaxBody when zero.
type Options struct {
	MaxBodySize   int64
	MaxFileSize   int64
	RetentionDays int
	AutoCleanup   bool
}

// New opens (creating if absent) <logDir>/<configID>_<localPort>.log on fs
// and starts the batching writer, trace-sweep, and rotation/retention
// goroutines.
func New(ctx context.Context, fs afero.Fs, logDir string, configID int64, localPort uint16, opts Options) (*Logger, error) {
	if err := fs.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	maxBody := opts.MaxBodySize
	if maxBody <= 0 {
		maxBody = constants.HTTPLogMaxBody
	}

	l := &Logger{
		configID:  configID,
		localPort: localPort,
		maxBody:   maxBody,
		fs:        fs,
		logPath:   fmt.Sprintf("%s/%d_%d.log", logDir, configID, localPort),
		entries:   make(chan logEntry, constants.HTTPLogChannelCap),
		done:      make(chan struct{}),
		metrics:   newMetrics(configID, localPort),
	}

	go l.writeLoop(ctx)
	go l.sweepLoop(ctx)
	go l.cleanupLoop(ctx, opts.MaxFileSize, opts.RetentionDays, opts.AutoCleanup)

	return l, nil
}

// Collect registers this logger's Prometheus counters on reg.
func (l *Logger) Collect(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{l.metrics.batches, l.metrics.entries, l.metrics.dropped} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (l *Logger) beginTrace(connID string) string {
	traceID := uuid.NewString()
	l.traces.Store(connID, &traceInfo{traceID: traceID, startedAt: time.Now()})
	return traceID
}

func (l *Logger) endTrace(connID string) (*traceInfo, bool) {
	v, ok := l.traces.LoadAndDelete(connID)
	if !ok {
		return nil, false
	}
	return v.(*traceInfo), true
}

func (l *Logger) submit(isResponse bool, text string) {
	select {
	case l.entries <- logEntry{isResponse: isResponse, text: text}:
	default:
		l.metrics.dropped.Inc()
		slog.Warn("http logger channel full, dropping entry", slog.Int64(constants.LogFieldConfigID, l.configID))
	}
}

// sweepLoop evicts trace records that never saw a matching response within
// the expiry window.
func (l *Logger) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(constants.TraceSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			l.traces.Range(func(key, value any) bool {
				info := value.(*traceInfo)
				if now.Sub(info.startedAt) > constants.TraceExpiry {
					l.traces.Delete(key)
				}
				return true
			})
		}
	}
}

// Shutdown drains any pending batch and closes the log file, bounded by a
// 1 s ceiling.
func (l *Logger) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(ctx, constants.HTTPLogWriterFlushWait)
	defer cancel()

	close(l.entries)
	select {
	case <-l.done:
	case <-shutdownCtx.Done():
		slog.Warn("http logger shutdown timed out before writer drained", slog.Int64(constants.LogFieldConfigID, l.configID))
	}
}

func (l *Logger) logError(msg string, err error) {
	slog.Error(msg, slogutil.Error(err), slog.Int64(constants.LogFieldConfigID, l.configID))
}
