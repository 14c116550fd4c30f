package ghlogin

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devatlas/devatlas/internal/common/httpclient"
	"github.com/devatlas/devatlas/internal/inboxsrv/config"
)

// gistServer fakes the GitHub gists endpoint. Body and status are swapped
// per test, calls are counted to observe retry behavior.
type gistServer struct {
	status int
	body   string
	calls  atomic.Int32

	lastPath   string
	lastAccept string
}

func (g *gistServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.calls.Add(1)
	g.lastPath = r.URL.Path
	g.lastAccept = r.Header.Get("Accept")
	w.WriteHeader(g.status)
	w.Write([]byte(g.body))
}

func newTestValidator(srv *gistServer) *Validator {
	cfg := &config.GitHubConfig{APIURL: "https://api.github.com", UserAgent: "devatlas-inboxd"}
	v := NewValidatorWithHTTP(httpclient.NewTestClient(cfg, srv))
	v.retryDelay = time.Millisecond
	return v
}

// signedOwner returns an owner id and the base58 signature its key makes
// over the verification phrase.
func signedOwner(t *testing.T) (string, string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return base58.Encode(pub), base58.Encode(ed25519.Sign(priv, []byte(verificationPhrase)))
}

func gistBody(login, nodeID, content string) string {
	return fmt.Sprintf(`{
		"id": "aa5a315d61ae9438b18d",
		"owner": {"login": %q, "node_id": %q},
		"files": {"proof.txt": {"filename": "proof.txt", "content": %q}}
	}`, login, nodeID, content)
}

func TestValidateGist(t *testing.T) {
	owner, sig := signedOwner(t)
	srv := &gistServer{status: http.StatusOK, body: gistBody("dev-login", "MDQ6VXNlcjU1OTcwOA==", sig)}
	v := newTestValidator(srv)

	got := v.ValidateGist(context.Background(), "aa5a315d61ae9438b18d", owner)
	assert.Equal(t, Validation{GhLogin: "dev-login", GhNodeID: "MDQ6VXNlcjU1OTcwOA=="}, got)
	assert.Equal(t, "/gists/aa5a315d61ae9438b18d", srv.lastPath)
	assert.Equal(t, "application/vnd.github.v3+json", srv.lastAccept)
}

func TestValidateGistStripsQuoteWrappers(t *testing.T) {
	owner, sig := signedOwner(t)
	for _, wrapped := range []string{
		`"` + sig + `"`,
		"'" + sig + "'",
		"`" + sig + "`",
		"  " + sig + "\n",
	} {
		srv := &gistServer{status: http.StatusOK, body: gistBody("dev-login", "node-1", wrapped)}
		v := newTestValidator(srv)

		got := v.ValidateGist(context.Background(), "aa5a315d61ae9438b18d", owner)
		assert.Equal(t, "dev-login", got.GhLogin, "content %q", wrapped)
	}
}

func TestValidateGistEmptyIDUnlinks(t *testing.T) {
	owner, _ := signedOwner(t)
	srv := &gistServer{status: http.StatusOK, body: "{}"}
	v := newTestValidator(srv)

	got := v.ValidateGist(context.Background(), "", owner)
	assert.Equal(t, Validation{}, got)
	assert.Equal(t, int32(0), srv.calls.Load(), "unlink must not call the API")
}

func TestValidateGistRejectsMalformedID(t *testing.T) {
	owner, _ := signedOwner(t)
	for _, gistID := range []string{
		"../repos/x",
		"id with spaces",
		strings.Repeat("a", 101),
	} {
		srv := &gistServer{status: http.StatusOK, body: "{}"}
		v := newTestValidator(srv)

		got := v.ValidateGist(context.Background(), gistID, owner)
		assert.Equal(t, Validation{}, got, "gist id %q", gistID)
		assert.Equal(t, int32(0), srv.calls.Load(), "gist id %q must not reach the API", gistID)
	}
}

func TestValidateGistNotFound(t *testing.T) {
	owner, _ := signedOwner(t)
	srv := &gistServer{status: http.StatusNotFound, body: `{"message":"Not Found"}`}
	v := newTestValidator(srv)

	got := v.ValidateGist(context.Background(), "aa5a315d61ae9438b18d", owner)
	assert.Equal(t, Validation{}, got)
	assert.Equal(t, int32(1), srv.calls.Load(), "4xx must not be retried")
}

func TestValidateGistRetriesServerErrors(t *testing.T) {
	owner, _ := signedOwner(t)
	srv := &gistServer{status: http.StatusBadGateway, body: ""}
	v := newTestValidator(srv)

	got := v.ValidateGist(context.Background(), "aa5a315d61ae9438b18d", owner)
	assert.Equal(t, Validation{}, got)
	assert.Equal(t, int32(3), srv.calls.Load())
}

func TestValidateGistRejectsBadResponses(t *testing.T) {
	owner, sig := signedOwner(t)
	_, otherSig := signedOwner(t)

	tests := []struct {
		name string
		body string
	}{
		{"not json", "owner: dev-login"},
		{"missing owner", fmt.Sprintf(`{"files":{"a.txt":{"content":%q}}}`, sig)},
		{"missing login", fmt.Sprintf(`{"owner":{"node_id":"n"},"files":{"a.txt":{"content":%q}}}`, sig)},
		{"login bad charset", gistBody("bad login!", "n", sig)},
		{"login too long", gistBody(strings.Repeat("a", 151), "n", sig)},
		{"missing files", `{"owner":{"login":"dev-login"}}`},
		{"two files", fmt.Sprintf(`{"owner":{"login":"dev-login"},"files":{"a.txt":{"content":%q},"b.txt":{"content":%q}}}`, sig, sig)},
		{"content not a string", `{"owner":{"login":"dev-login"},"files":{"a.txt":{"content":42}}}`},
		{"content empty", gistBody("dev-login", "n", "''")},
		{"content too long", gistBody("dev-login", "n", strings.Repeat("x", 301))},
		{"signature not base58", gistBody("dev-login", "n", "0OIl not base58")},
		{"signature from another key", gistBody("dev-login", "n", otherSig)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := &gistServer{status: http.StatusOK, body: tt.body}
			v := newTestValidator(srv)

			got := v.ValidateGist(context.Background(), "aa5a315d61ae9438b18d", owner)
			assert.Equal(t, Validation{}, got)
		})
	}
}
