// Package httpclient provides a configurable HTTP client for calling the REST
// endpoints this service depends on: the search engine, the GitHub API and the
// daemons' own ops listeners. The package requires a Configurator
// implementation for endpoint configuration and authentication details.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/tidwall/gjson"
)

// Configurator defines the interface for providing endpoint configuration and
// authentication details. Implementations provide the base URL, an optional
// bearer token and the User-Agent to present.
type Configurator interface {
	GetEndpointURL() string
	GetAuthToken() string
	GetUserAgent() string
}

// HTTPError represents an error response from the server with HTTP status code and message.
type HTTPError struct {
	StatusCode int    // HTTP status code of the error
	Message    string // Error message or response body
}

// Error implements the error interface for HTTPError.
func (e *HTTPError) Error() string {
	return e.Message
}

// HTTPClient represents a client for making HTTP requests to a REST endpoint.
// It handles authentication, request building, and response processing.
type HTTPClient struct {
	config     Configurator
	httpClient *http.Client
}

// ClientOptions contains options for configuring the HTTP client.
type ClientOptions struct {
	DisableCertValidation bool          // If true, skips SSL certificate validation
	Timeout               time.Duration // Per-request timeout, zero means no timeout
}

// NewClient creates a new HTTP client using the provided configuration.
// The config parameter must implement the Configurator interface.
func NewClient(config Configurator, opts ...ClientOptions) *HTTPClient {
	clientOpts := ClientOptions{}
	if len(opts) > 0 {
		clientOpts = opts[0]
	}
	return NewClientWithOptions(config, clientOpts)
}

// NewClientWithOptions creates a new HTTP client using the provided configuration and options.
// The config parameter must implement the Configurator interface.
func NewClientWithOptions(config Configurator, opts ClientOptions) *HTTPClient {
	httpClient := &http.Client{
		Timeout: opts.Timeout,
	}

	if opts.DisableCertValidation {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		}
	}

	return &HTTPClient{
		config:     config,
		httpClient: httpClient,
	}
}

// RequestOptions contains options for making HTTP requests.
// All fields are optional except Method and Path.
type RequestOptions struct {
	Method      string            // HTTP method (GET, POST, PUT, DELETE)
	Path        string            // endpoint path relative to the base URL
	QueryParams map[string]string // Optional query parameters
	Headers     map[string]string // Optional extra headers, override the defaults
	Body        []byte            // Optional request body
}

// DoRequest makes an HTTP request with the given options.
// Returns the response body, Location header (if present), and any error that
// occurred. A status >= 400 returns an HTTPError carrying whatever reason the
// server put in the body.
func (c *HTTPClient) DoRequest(ctx context.Context, opts RequestOptions) ([]byte, string, error) {
	u, err := url.Parse(c.config.GetEndpointURL())
	if err != nil {
		return nil, "", fmt.Errorf("invalid endpoint URL: %v", err)
	}
	u.Path = path.Join(u.Path, opts.Path)

	q := u.Query()
	for k, v := range opts.QueryParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()

	bodyReader := bytes.NewBuffer(opts.Body)
	req, err := http.NewRequestWithContext(ctx, opts.Method, u.String(), bodyReader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %v", err)
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

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %v", err)
	}

	if resp.StatusCode >= 400 {
		return nil, "", &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    errorReason(resp.StatusCode, body),
		}
	}

	return body, resp.Header.Get("Location"), nil
}

// errorReason digs the most useful message out of an error response body.
// Search engines nest it under error.reason, our own listeners use a flat
// error field; anything else is returned verbatim.
func errorReason(statusCode int, body []byte) string {
	if reason := gjson.GetBytes(body, "error.reason").String(); reason != "" {
		return reason
	}
	if reason := gjson.GetBytes(body, "error").String(); reason != "" {
		return reason
	}
	if len(body) > 0 {
		return string(body)
	}
	return http.StatusText(statusCode)
}
