// Package ghlogin validates a developer's claim to a GitHub login. The
// developer publishes a gist whose single file contains the base58 signature
// of a fixed phrase made with their owner key; owning both the gist and the
// key proves the GitHub account and the submissions belong to the same
// person.
package ghlogin

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/devatlas/devatlas/internal/common/httpclient"
	"github.com/devatlas/devatlas/internal/inboxsrv/config"
	"github.com/devatlas/devatlas/internal/inboxsrv/identity"
)

// verificationPhrase is the exact byte string developers sign. Changing it
// invalidates every published gist.
const verificationPhrase = "devatlas"

const (
	maxLoginLen     = 150
	maxGistIDLen    = 100
	maxSignatureLen = 300
)

// invalidChars flags anything outside the character range GitHub uses for
// logins. Gist ids are held to the same range before they go into a URL.
var invalidChars = regexp.MustCompile(`[^\w\-]`)

// Validation is the outcome of a gist check. The zero value means the login
// must be cleared.
type Validation struct {
	GhLogin  string
	GhNodeID string
}

// Validator checks gists against the GitHub API.
type Validator struct {
	http httpclient.HTTPClientInterface

	// base retry delay, shortened in tests
	retryDelay time.Duration
}

// NewValidator builds a validator from the service configuration.
func NewValidator(cfg *config.GitHubConfig) *Validator {
	httpClient := httpclient.NewClient(cfg, httpclient.ClientOptions{
		Timeout: cfg.GetTimeoutOrDefault(),
	})
	return NewValidatorWithHTTP(httpClient)
}

// NewValidatorWithHTTP builds a validator over an existing HTTP client.
// Tests pass an httpclient.TestHTTPClient here.
func NewValidatorWithHTTP(http httpclient.HTTPClientInterface) *Validator {
	return &Validator{
		http:       http,
		retryDelay: 1 * time.Second,
	}
}

// ValidateGist fetches the gist and verifies its signature against the owner
// key. Any failure returns the zero Validation and the caller persists that
// as an unlink: the developer stays in control because publishing a new gist
// queues another validation. An empty gist id is an explicit unlink request.
func (v *Validator) ValidateGist(ctx context.Context, gistID, ownerID string) Validation {
	logger := log.Ctx(ctx)

	if gistID == "" {
		logger.Info().Str("owner_id", ownerID).Msg("clearing github login")
		return Validation{}
	}
	if len(gistID) > maxGistIDLen || invalidChars.MatchString(gistID) {
		logger.Error().Str("owner_id", ownerID).Msg("malformed gist id")
		return Validation{}
	}

	body, err := v.fetchGist(ctx, gistID)
	if err != nil {
		logger.Error().Err(err).Str("gist_id", gistID).Msg("gist fetch failed")
		return Validation{}
	}

	ghLogin := gjson.GetBytes(body, "owner.login").String()
	if ghLogin == "" || len(ghLogin) > maxLoginLen || invalidChars.MatchString(ghLogin) {
		logger.Error().Str("gist_id", gistID).Msg("gist response has no usable owner login")
		return Validation{}
	}

	signature, ok := gistFileContent(body)
	if !ok {
		logger.Error().Str("gist_id", gistID).Msg("gist must have exactly one file with string content")
		return Validation{}
	}

	if !identity.Verify([]byte(verificationPhrase), signature, ownerID) {
		logger.Error().Str("gist_id", gistID).Str("gh_login", ghLogin).Msg("gist signature rejected")
		return Validation{}
	}

	logger.Info().Str("gh_login", ghLogin).Str("gist_id", gistID).Msg("github login validated")
	return Validation{
		GhLogin:  ghLogin,
		GhNodeID: gjson.GetBytes(body, "owner.node_id").String(),
	}
}

// fetchGist GETs the gist with retries. A 4xx aborts the attempts early: the
// gist is gone or private and refetching cannot change that.
func (v *Validator) fetchGist(ctx context.Context, gistID string) ([]byte, error) {
	opts := httpclient.RequestOptions{
		Method: "GET",
		Path:   "gists/" + gistID,
		Headers: map[string]string{
			"Accept": "application/vnd.github.v3+json",
		},
	}

	var body []byte
	err := retry.Do(func() error {
		var err error
		body, _, err = v.http.DoRequest(ctx, opts)
		if err != nil {
			var httpErr *httpclient.HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
				return retry.Unrecoverable(err)
			}
			return err
		}
		return nil
	}, retry.Attempts(3), retry.Delay(v.retryDelay), retry.DelayType(retry.BackOffDelay), retry.LastErrorOnly(true))
	if err != nil {
		return nil, err
	}
	return body, nil
}

// gistFileContent digs the signature out of the response. The file name is
// unknown, it is the JSON property name under "files", and there must be
// exactly one. Quote wrappers are stripped because developers paste the
// signature into the gist by hand.
func gistFileContent(body []byte) (string, bool) {
	files := gjson.GetBytes(body, "files")
	if !files.IsObject() {
		return "", false
	}

	var content gjson.Result
	count := 0
	files.ForEach(func(_, file gjson.Result) bool {
		count++
		content = file.Get("content")
		return true
	})
	if count != 1 || content.Type != gjson.String {
		return "", false
	}

	signature := strings.NewReplacer(`"`, "", `'`, "", "`", "").Replace(content.String())
	signature = strings.TrimSpace(signature)
	if signature == "" || len(signature) > maxSignatureLen {
		return "", false
	}
	return signature, true
}
