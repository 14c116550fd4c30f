package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/devatlas/devatlas/internal/common/httpx"
	"github.com/devatlas/devatlas/internal/common/logtrace"
)

// Recoverer turns a handler panic into a logged 500 instead of a dead
// listener. The stack goes to the log, never to the client.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := httpx.NewResponseWriter(w)
		defer func() {
			if v := recover(); v != nil {
				log.Ctx(r.Context()).Error().
					Interface("panic", v).
					Bytes("stack", debug.Stack()).
					Str("path", r.URL.Path).
					Msg("handler panicked")
				if !rw.Written() {
					httpx.ErrInternal("").
						WithRequestID(logtrace.RequestIDFromContext(r.Context())).
						Send(rw)
				}
			}
		}()
		next.ServeHTTP(rw, r)
	})
}
