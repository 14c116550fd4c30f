package httpclient

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"

	"context"
)

// TestHTTPClient represents a test client that serves requests against an
// in-process http.Handler. It uses httptest.NewRecorder to capture responses
// without making actual network calls.
type TestHTTPClient struct {
	config  Configurator
	handler http.Handler
}

// NewTestClient creates a new test HTTP client that dispatches every request
// to the given handler. The handler is typically a service router or a
// hand-rolled fake for the remote API under test.
func NewTestClient(config Configurator, handler http.Handler) *TestHTTPClient {
	return &TestHTTPClient{
		config:  config,
		handler: handler,
	}
}

// DoRequest makes an HTTP request with the given options directly to the handler.
// Uses httptest.NewRecorder to capture the response without network calls.
// Returns the response body, Location header (if present), and any error that occurred.
func (c *TestHTTPClient) DoRequest(ctx context.Context, opts RequestOptions) ([]byte, string, error) {
	u, err := url.Parse(c.config.GetEndpointURL())
	if err != nil {
		return nil, "", err
	}
	if u.Path == "" {
		u.Path = "/"
	}
	u.Path = path.Join(u.Path, opts.Path)

	q := u.Query()
	for k, v := range opts.QueryParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, opts.Method, u.String(), bytes.NewBuffer(opts.Body))
	if err != nil {
		return nil, "", err
	}

	req.Header.Set("Content-Type", "application/json")
	if ua := c.config.GetUserAgent(); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if token := c.config.GetAuthToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	rr := httptest.NewRecorder()
	c.handler.ServeHTTP(rr, req)
	body := rr.Body.Bytes()

	if rr.Code >= 400 {
		return nil, "", &HTTPError{
			StatusCode: rr.Code,
			Message:    errorReason(rr.Code, body),
		}
	}

	return body, rr.Header().Get("Location"), nil
}
