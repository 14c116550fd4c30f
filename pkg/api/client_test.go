package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// submissionRecorder captures what the inbox endpoint received and answers
// with a canned inbox key.
type submissionRecorder struct {
	mu      sync.Mutex
	status  int
	reply   string
	count   int
	headers http.Header
	body    []byte
}

func (s *submissionRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.count++
	s.headers = r.Header.Clone()
	s.body = body
	status, reply := s.status, s.reply
	s.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	fmt.Fprint(w, reply)
}

func (s *submissionRecorder) snapshot() (int, http.Header, []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count, s.headers, append([]byte(nil), s.body...)
}

func newTestClient(t *testing.T, rec *submissionRecorder, opts ...ClientOption) (*Client, ed25519.PublicKey, func()) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	srv := httptest.NewServer(rec)
	c, err := NewClient(srv.URL, priv, opts...)
	require.NoError(t, err)
	return c, pub, srv.Close
}

func gunzip(t *testing.T, data []byte) []byte {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	return plain
}

func TestNewClientValidation(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	_, cerr := NewClient("", priv)
	require.Error(t, cerr)

	_, cerr = NewClient("http://inbox.example.com", ed25519.PrivateKey([]byte("too short")))
	require.Error(t, cerr)
}

func TestSubmitReportSignsAndStamps(t *testing.T) {
	rec := &submissionRecorder{reply: "queue/1622467200_abc.gz"}
	c, pub, closeSrv := newTestClient(t, rec)
	defer closeSrv()

	assert.Equal(t, base58.Encode(pub), c.OwnerID())

	receipt, err := c.SubmitReport(context.Background(), []byte(`{"projects_included":[]}`))
	require.NoError(t, err)
	assert.Equal(t, c.OwnerID(), receipt.OwnerID)
	assert.Equal(t, "queue/1622467200_abc.gz", receipt.InboxKey)

	count, headers, body := rec.snapshot()
	assert.Equal(t, 1, count)
	assert.Equal(t, receipt.Bytes, len(body))
	assert.Equal(t, "application/gzip", headers.Get("Content-Type"))
	assert.Equal(t, "devatlas-client", headers.Get("User-Agent"))
	assert.Equal(t, c.OwnerID(), headers.Get(HeaderKey))

	// the signature covers the compressed body exactly as transmitted
	sig, err := base58.Decode(headers.Get(HeaderSig))
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(pub, body, sig))

	plain := gunzip(t, body)
	ts := gjson.GetBytes(plain, "timestamp")
	require.True(t, ts.Exists())
	_, perr := time.Parse(time.RFC3339, ts.String())
	assert.NoError(t, perr)
}

func TestSubmitReportKeepsCallerTimestamp(t *testing.T) {
	rec := &submissionRecorder{}
	c, _, closeSrv := newTestClient(t, rec)
	defer closeSrv()

	in := []byte(`{"timestamp":"2021-06-01T10:30:00Z","projects_included":[]}`)
	_, err := c.SubmitReport(context.Background(), in)
	require.NoError(t, err)

	_, _, body := rec.snapshot()
	assert.Equal(t, in, gunzip(t, body))
}

func TestSubmitReportWithGist(t *testing.T) {
	rec := &submissionRecorder{}
	c, _, closeSrv := newTestClient(t, rec)
	defer closeSrv()

	_, err := c.SubmitReportWithGist(context.Background(), []byte(`{"projects_included":[]}`), "gist-7")
	require.NoError(t, err)
	_, _, body := rec.snapshot()
	assert.Equal(t, "gist-7", gjson.GetBytes(gunzip(t, body), "gh_validation_gist_id").String())

	// an empty id still travels, as an explicit unlink request
	_, err = c.SubmitReportWithGist(context.Background(), []byte(`{"projects_included":[]}`), "")
	require.NoError(t, err)
	_, _, body = rec.snapshot()
	claim := gjson.GetBytes(gunzip(t, body), "gh_validation_gist_id")
	require.True(t, claim.Exists())
	assert.Equal(t, "", claim.String())
}

func TestSubmitReportRejectsInvalidJSON(t *testing.T) {
	rec := &submissionRecorder{}
	c, _, closeSrv := newTestClient(t, rec)
	defer closeSrv()

	_, err := c.SubmitReport(context.Background(), []byte("not a report"))
	require.Error(t, err)

	count, _, _ := rec.snapshot()
	assert.Equal(t, 0, count)
}

func TestSubmitReportRejectionIsFinal(t *testing.T) {
	rec := &submissionRecorder{status: http.StatusForbidden, reply: "signature rejected"}
	c, _, closeSrv := newTestClient(t, rec, WithMaxRetries(3), WithRetryDelay(time.Millisecond))
	defer closeSrv()

	_, err := c.SubmitReport(context.Background(), []byte(`{}`))
	require.ErrorContains(t, err, "signature rejected")

	count, _, _ := rec.snapshot()
	assert.Equal(t, 1, count)
}

func TestSubmitReportRetriesTransportFailures(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(url, priv, WithMaxRetries(2), WithRetryDelay(time.Millisecond))
	require.NoError(t, err)

	_, serr := c.SubmitReport(context.Background(), []byte(`{}`))
	require.ErrorContains(t, serr, "after 2 attempts")
}
