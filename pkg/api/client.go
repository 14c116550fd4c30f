// Package api provides client functionality for submitting code analysis
// reports to the DevAtlas inbox service.
package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/ed25519"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mr-tron/base58"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Submission headers. The key header carries the base58 public key that
// doubles as the owner id. The signature header carries the base58 detached
// signature over the request body exactly as transmitted, so the service
// can verify it before decompressing anything.
const (
	HeaderKey = "devatlas-key"
	HeaderSig = "devatlas-sig"
)

// Client represents a client for submitting code analysis reports to the
// DevAtlas inbox service. It signs every submission with the developer's
// private key and retries transient transport failures.
type Client struct {
	httpClient *http.Client
	inboxURL   string
	key        ed25519.PrivateKey
	ownerID    string
	config     clientConfig
}

// Receipt describes an accepted submission. InboxKey is the object key the
// service stored the payload under, Bytes the compressed payload size.
type Receipt struct {
	OwnerID  string
	InboxKey string
	Bytes    int
}

// ClientOption is a function type for configuring client behavior.
// It allows setting various client options like timeouts and retry behavior.
type ClientOption func(*clientConfig)

type clientConfig struct {
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	userAgent  string
}

// WithTimeout sets the total request timeout for the client's HTTP calls.
// This bounds the whole submission round trip, not a single dial.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.timeout = timeout
	}
}

// WithMaxRetries sets the maximum number of attempts for failed requests.
// The client will retry transport failures up to this many times before giving up.
func WithMaxRetries(maxRetries int) ClientOption {
	return func(c *clientConfig) {
		c.maxRetries = maxRetries
	}
}

// WithRetryDelay sets the delay between retry attempts for failed requests.
// This controls how long the client waits before retrying a failed request.
func WithRetryDelay(delay time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.retryDelay = delay
	}
}

// WithUserAgent sets the User-Agent header sent with every submission.
func WithUserAgent(userAgent string) ClientOption {
	return func(c *clientConfig) {
		c.userAgent = userAgent
	}
}

// NewClient creates a new Client for the given inbox endpoint and signing
// key. The owner id is derived from the key's public half and sent with
// every submission. Returns an error if the endpoint is empty or the key
// has the wrong size.
func NewClient(inboxURL string, key ed25519.PrivateKey, opts ...ClientOption) (*Client, error) {
	config := clientConfig{
		timeout:    30 * time.Second,
		maxRetries: 3,
		retryDelay: 1 * time.Second,
		userAgent:  "devatlas-client",
	}
	for _, opt := range opts {
		opt(&config)
	}

	if inboxURL == "" {
		return nil, fmt.Errorf("inbox URL is required")
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signing key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}

	httpClient := &http.Client{
		Timeout: config.timeout,
	}

	return &Client{
		httpClient: httpClient,
		inboxURL:   inboxURL,
		key:        key,
		ownerID:    base58.Encode(key.Public().(ed25519.PublicKey)),
		config:     config,
	}, nil
}

// OwnerID returns the base58 owner id derived from the signing key.
func (c *Client) OwnerID() string {
	return c.ownerID
}

// SubmitReport submits one report, given as plain JSON. A submission
// timestamp is stamped into the report when it does not already carry one.
// The developer's recorded gist claim, if any, is left untouched.
func (c *Client) SubmitReport(ctx context.Context, reportJSON []byte) (*Receipt, error) {
	stamped, err := prepareReport(reportJSON)
	if err != nil {
		return nil, err
	}
	return c.submit(ctx, stamped)
}

// SubmitReportWithGist submits one report with an explicit GitHub gist
// claim stamped into it. An empty gist id requests an unlink of the
// previously validated login.
func (c *Client) SubmitReportWithGist(ctx context.Context, reportJSON []byte, gistID string) (*Receipt, error) {
	stamped, err := prepareReport(reportJSON)
	if err != nil {
		return nil, err
	}
	stamped, err = sjson.SetBytes(stamped, "gh_validation_gist_id", gistID)
	if err != nil {
		return nil, fmt.Errorf("failed to stamp gist id: %w", err)
	}
	return c.submit(ctx, stamped)
}

// prepareReport validates the raw report and stamps the submission
// timestamp when the caller did not set one.
func prepareReport(reportJSON []byte) ([]byte, error) {
	if !gjson.ValidBytes(reportJSON) {
		return nil, fmt.Errorf("report is not valid JSON")
	}
	if gjson.GetBytes(reportJSON, "timestamp").Exists() {
		return reportJSON, nil
	}
	stamped, err := sjson.SetBytes(reportJSON, "timestamp", time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to stamp timestamp: %w", err)
	}
	return stamped, nil
}

// submit gzips the report, signs the compressed bytes and posts them.
// Transport failures are retried; an HTTP-level rejection is final because
// resubmitting the same payload would be rejected again.
func (c *Client) submit(ctx context.Context, reportJSON []byte) (*Receipt, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(reportJSON); err != nil {
		return nil, fmt.Errorf("failed to compress report: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress report: %w", err)
	}
	body := buf.Bytes()
	sig := ed25519.Sign(c.key, body)

	var lastErr error
	for i := 0; i < c.config.maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, "POST", c.inboxURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/gzip")
		req.Header.Set("User-Agent", c.config.userAgent)
		req.Header.Set(HeaderKey, c.ownerID)
		req.Header.Set(HeaderSig, base58.Encode(sig))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			time.Sleep(c.config.retryDelay)
			continue
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("submission rejected: %s", string(respBody))
		}

		return &Receipt{
			OwnerID:  c.ownerID,
			InboxKey: string(bytes.TrimSpace(respBody)),
			Bytes:    len(body),
		}, nil
	}

	return nil, fmt.Errorf("failed to submit report after %d attempts: %w", c.config.maxRetries, lastErr)
}
