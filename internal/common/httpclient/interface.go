package httpclient

import "context"

// HTTPClientInterface is what callers hold, so tests can substitute
// TestHTTPClient and run requests against an in-process handler.
type HTTPClientInterface interface {
	// DoRequest performs one request and returns the response body, the
	// Location header when present, and any error.
	DoRequest(ctx context.Context, opts RequestOptions) ([]byte, string, error)
}

var _ HTTPClientInterface = &HTTPClient{}
var _ HTTPClientInterface = &TestHTTPClient{}
