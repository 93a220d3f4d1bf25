package httplogger

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const separator = "----------------------------------------"

// isWebSocketUpgrade reports whether resp is a completed WebSocket
// handshake, which is "complete" the moment headers are seen: everything
// after it is a non-HTTP byte stream.
func isWebSocketUpgrade(resp *http.Response) bool {
	return resp.StatusCode == http.StatusSwitchingProtocols &&
		strings.EqualFold(resp.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(resp.Header.Get("Connection")), "upgrade")
}

// hasNoBody reports status codes the HTTP/1.1 spec forbids from carrying a
// body regardless of headers.
func hasNoBody(status int) bool {
	if status >= 100 && status < 200 {
		return true
	}
	return status == http.StatusNoContent || status == http.StatusNotModified
}

func formatRequestLog(req *http.Request, body []byte, bodyErr error, traceID string, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\nTrace ID: %s\nRequest at: %s\n", separator, traceID, at.Format(time.RFC3339))
	fmt.Fprintf(&b, "Method: %s\nPath: %s\nVersion: %s\n\nHeaders:\n", req.Method, req.URL.RequestURI(), req.Proto)
	writeHeaders(&b, req.Header)
	writeBody(&b, body, bodyErr, req.Header)
	return b.String()
}

func formatResponseLog(resp *http.Response, body []byte, bodyErr error, traceID string, at time.Time, took time.Duration, noTrace bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\nTrace ID: %s\nResponse at: %s\nTook: %d ms\n", separator, traceID, at.Format(time.RFC3339), took.Milliseconds())
	if noTrace {
		b.WriteString("No trace info: no matching request was recorded for this response.\n")
	}
	fmt.Fprintf(&b, "Status: %d\n\nHeaders:\n", resp.StatusCode)
	writeHeaders(&b, resp.Header)
	writeBody(&b, body, bodyErr, resp.Header)
	return b.String()
}

func writeHeaders(b *strings.Builder, h http.Header) {
	for name, values := range h {
		for _, v := range values {
			fmt.Fprintf(b, "%s: %s\n", name, v)
		}
	}
}

func writeBody(b *strings.Builder, body []byte, bodyErr error, headers http.Header) {
	if bodyErr != nil {
		fmt.Fprintf(b, "\n\nBody:\n<%s>\n", bodyErr.Error())
		return
	}
	if len(body) == 0 {
		b.WriteString("\n\nBody:\n<empty>\n")
		return
	}

	if json.Valid(body) {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, body, "", "  "); err == nil {
			fmt.Fprintf(b, "\n\nBody:\n%s\n", pretty.String())
			return
		}
	}

	if isTextual(body) {
		fmt.Fprintf(b, "\n\nBody:\n%s\n", strings.TrimRight(string(body), "\r\n"))
		return
	}

	if isImage(headers) {
		b.WriteString("\n\nBody:\n<image>\n")
		return
	}
	b.WriteString("\n\nBody:\n<binary>\n")
}

func isTextual(body []byte) bool {
	for _, r := range string(body) {
		if r == 0 {
			return false
		}
	}
	return true
}

func isImage(h http.Header) bool {
	return strings.HasPrefix(strings.ToLower(h.Get("Content-Type")), "image/")
}

// readBody reads body up to maxBody bytes, decompressing gzip content on a
// dedicated goroutine (never the I/O goroutine feeding the tee). Bodies
// over the ceiling are elided rather than buffered in full.
func readBody(r io.Reader, headers http.Header, maxBody int64) ([]byte, error) {
	contentLength := int64(-1)
	if cl := headers.Get("Content-Length"); cl != "" {
		if v, err := strconv.ParseInt(cl, 10, 64); err == nil {
			contentLength = v
		}
	}
	if contentLength > maxBody {
		io.Copy(io.Discard, io.LimitReader(r, maxBody)) //nolint:errcheck
		return nil, errBodyTooLarge
	}

	limited := io.LimitReader(r, maxBody+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBody {
		return nil, errBodyTooLarge
	}

	if strings.EqualFold(headers.Get("Content-Encoding"), "gzip") {
		return decompressGzip(raw)
	}
	return raw, nil
}

func decompressGzip(raw []byte) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			done <- result{nil, err}
			return
		}
		defer zr.Close()
		data, err := io.ReadAll(zr)
		done <- result{data, err}
	}()
	r := <-done
	if r.err != nil {
		return nil, fmt.Errorf("decompress gzip body: %w", r.err)
	}
	return r.data, nil
}

var errBodyTooLarge = fmt.Errorf("content too large")
