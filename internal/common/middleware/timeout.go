package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/devatlas/devatlas/internal/common/httpx"
	"github.com/devatlas/devatlas/internal/common/logtrace"
)

// SetTimeout puts a deadline on the request context. Handlers and the
// calls they make are expected to respect the context; when one returns
// late without having written anything, the client gets a 408 instead of
// an empty 200.
func SetTimeout(limit time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), limit)
			defer cancel()

			rw := httpx.NewResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			if ctx.Err() != nil && !rw.Written() {
				log.Ctx(ctx).Error().
					Str("path", r.URL.Path).
					Dur("limit", limit).
					Msg("request timed out")
				httpx.ErrTimeout().
					WithRequestID(logtrace.RequestIDFromContext(ctx)).
					Send(rw)
			}
		})
	}
}
