package httpx

import (
	"net/http"
)

// ResponseWriter wraps http.ResponseWriter and records what the handler
// did with it. Middleware uses the recorded status and size for the
// request log, and Written to avoid sending an error reply over a partial
// body.
type ResponseWriter struct {
	http.ResponseWriter
	wroteHeader bool
	status      int
	bytes       int64
}

// NewResponseWriter wraps w. If w is already a *ResponseWriter it is
// returned as is, so stacked middleware shares one set of counters.
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	if rw, ok := w.(*ResponseWriter); ok {
		return rw
	}
	return &ResponseWriter{ResponseWriter: w}
}

// WriteHeader sends the status code once. Later calls are dropped, which
// keeps a recovering middleware from tripping a superfluous-header panic.
func (rw *ResponseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write sends body bytes, defaulting the status to 200 when the handler
// never called WriteHeader.
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// Written reports whether the header went out.
func (rw *ResponseWriter) Written() bool {
	return rw.wroteHeader
}

// Status returns the status code sent to the client, or 200 when nothing
// was written yet.
func (rw *ResponseWriter) Status() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

// BytesWritten returns the number of body bytes written so far.
func (rw *ResponseWriter) BytesWritten() int64 {
	return rw.bytes
}

// Flush passes through to the underlying writer when it supports it.
func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
