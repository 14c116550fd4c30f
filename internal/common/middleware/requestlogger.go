// Package middleware is the request plumbing for the operational
// listeners: request ids, completion logging, panic recovery and a
// per-request deadline.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/devatlas/devatlas/internal/common/httpx"
	"github.com/devatlas/devatlas/internal/common/logtrace"
	"github.com/devatlas/devatlas/internal/common/uuid"
)

// RequestIDHeader carries the request id back to the caller.
const RequestIDHeader = "X-DevAtlas-Request-ID"

// RequestLogger tags every request with an id, stores it in the context
// for the handler's log lines and writes one completion line with status,
// size and duration. Readiness probes log at debug so a polling
// supervisor does not flood the log.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := requestID()
		ctx := logtrace.WithRequestID(r.Context(), id)
		ctx = log.With().Str("request_id", id).Logger().WithContext(ctx)

		rw := httpx.NewResponseWriter(w)
		rw.Header().Set(RequestIDHeader, id)

		next.ServeHTTP(rw, r.WithContext(ctx))

		evt := log.Ctx(ctx).Info()
		if isProbe(r.URL.Path) {
			evt = log.Ctx(ctx).Debug()
		}
		evt.Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Int("status", rw.Status()).
			Int64("bytes", rw.BytesWritten()).
			Dur("took", time.Since(start)).
			Msg("request completed")
	})
}

func isProbe(path string) bool {
	return strings.HasSuffix(path, "/ready")
}

// requestID returns a fresh uuid, falling back to a nanosecond stamp when
// the random source fails.
func requestID() string {
	u, err := uuid.NewRandom()
	if err == nil {
		return u.String()
	}
	return "t-" + strconv.FormatInt(time.Now().UnixNano(), 10)
}
