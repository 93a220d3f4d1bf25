package httplogger

import (
	"bufio"
	"context"
	"os"
	"time"

	"github.com/hcavarsan/kftray-sub001/pkg/constants"
)

const writerBufferSize = 64 * 1024

// writeLoop is the single writer goroutine: it batches entries (>= batch
// size, every batch interval, or whenever a response arrives) and flushes
// them in one shot, writing responses before same-batch requests so a
// reader never observes an orphan request without its paired response.
func (l *Logger) writeLoop(ctx context.Context) {
	defer close(l.done)

	file, err := l.fs.OpenFile(l.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l.logError("open http log file", err)
		return
	}
	defer file.Close()

	w := bufio.NewWriterSize(file, writerBufferSize)

	ticker := time.NewTicker(constants.HTTPLogBatchInterval)
	defer ticker.Stop()

	var batch []logEntry
	flush := func() {
		if len(batch) == 0 {
			return
		}
		sawResponse := false
		for _, e := range batch {
			if e.isResponse {
				sawResponse = true
			}
		}
		for _, e := range batch {
			if e.isResponse {
				_, _ = w.WriteString(e.text)
			}
		}
		for _, e := range batch {
			if !e.isResponse {
				_, _ = w.WriteString(e.text)
			}
		}
		_ = w.Flush()
		if sawResponse {
			_ = file.Sync()
		}
		l.metrics.batches.Inc()
		l.metrics.entries.Add(float64(len(batch)))
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case e, ok := <-l.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if e.isResponse || len(batch) >= constants.HTTPLogBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
