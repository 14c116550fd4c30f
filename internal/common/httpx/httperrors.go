package httpx

import (
	"encoding/json"
	"net/http"
)

// Error is a JSON error reply from an ops listener. The request id, when
// set, ties the reply to the daemon log lines for the same request.
type Error struct {
	Status    int    `json:"-"`
	Message   string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// WithRequestID returns a copy of the error carrying the request id.
func (e *Error) WithRequestID(id string) *Error {
	dup := *e
	dup.RequestID = id
	return &dup
}

// Send writes the error as JSON. A nil writer is ignored. If even the
// error fails to marshal, a plain-text reply goes out instead.
func (e *Error) Send(w http.ResponseWriter) {
	if w == nil {
		return
	}
	body, err := json.Marshal(e)
	if err != nil {
		http.Error(w, e.Message, e.Status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	w.Write(body)
}

// ErrInternal returns a 500 reply with the given message, or a generic
// one when the message is empty. The message must not leak internals;
// the detail belongs in the log line for the request id.
func ErrInternal(msg string) *Error {
	if msg == "" {
		msg = "unable to process request"
	}
	return &Error{Status: http.StatusInternalServerError, Message: msg}
}

// ErrTimeout returns the 408 reply the timeout middleware sends when a
// handler overruns its deadline.
func ErrTimeout() *Error {
	return &Error{Status: http.StatusRequestTimeout, Message: "request timed out"}
}
