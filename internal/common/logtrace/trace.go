package logtrace

import (
	"context"
)

type requestIDKey struct{}

// WithRequestID returns a context carrying the request id the middleware
// assigned to this request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id, or an empty string when the
// context carries none.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
