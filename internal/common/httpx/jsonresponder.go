// Package httpx carries the response helpers shared by the operational
// listeners: a JSON responder, JSON error replies that carry the request
// id, and a response writer that records status and size for the request
// log.
package httpx

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/devatlas/devatlas/internal/common/logtrace"
)

// SendJSON marshals v and writes it with the given status code. A marshal
// failure turns into a 500 carrying the request id, so the caller can find
// the matching log line.
func SendJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Ctx(ctx).Err(err).Msg("unable to marshal response")
		ErrInternal("").WithRequestID(logtrace.RequestIDFromContext(ctx)).Send(w)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
