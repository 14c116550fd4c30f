// Package search uploads developer profiles to the search engine. The engine
// is any Elasticsearch-compatible endpoint: documents are PUT to
// <index>/_doc/<doc-id> and the engine's own mapping decides what is
// searchable.
package search

import (
	"context"
	"errors"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog/log"

	"github.com/devatlas/devatlas/internal/common/apperrors"
	"github.com/devatlas/devatlas/internal/common/httpclient"
	"github.com/devatlas/devatlas/internal/inboxsrv/config"
)

// ErrSearch is returned for any failed search engine interaction. Uploads
// are retried by the caller's job machinery, so the disposition stays
// retryable even when the engine rejected the document outright.
var ErrSearch apperrors.Error = apperrors.New("search engine request failed")

// Client uploads profile documents to one index of the search engine.
type Client struct {
	http   httpclient.HTTPClientInterface
	devIdx string

	// base retry delay, shortened in tests
	retryDelay time.Duration
}

// NewClient builds a search client from the service configuration.
func NewClient(cfg *config.SearchConfig) *Client {
	httpClient := httpclient.NewClient(cfg, httpclient.ClientOptions{
		Timeout: cfg.GetTimeoutOrDefault(),
	})
	return NewClientWithHTTP(cfg.DevIdx, httpClient)
}

// NewClientWithHTTP builds a search client over an existing HTTP client.
// Tests pass an httpclient.TestHTTPClient here.
func NewClientWithHTTP(devIdx string, http httpclient.HTTPClientInterface) *Client {
	return &Client{
		http:       http,
		devIdx:     devIdx,
		retryDelay: 1 * time.Second,
	}
}

// IndexProfile PUTs the serialized profile into the developer index under
// docID, overwriting any previous version of the document. Transient
// failures are retried 3 times with backoff; a 4xx response aborts the
// attempts early because resubmitting the same document cannot fix it.
func (c *Client) IndexProfile(ctx context.Context, docID string, profile []byte) apperrors.Error {
	opts := httpclient.RequestOptions{
		Method: "PUT",
		Path:   c.devIdx + "/_doc/" + docID,
		Body:   profile,
	}

	err := retry.Do(func() error {
		_, _, err := c.http.DoRequest(ctx, opts)
		if err != nil {
			var httpErr *httpclient.HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
				return retry.Unrecoverable(err)
			}
			return err
		}
		return nil
	}, retry.Attempts(3), retry.Delay(c.retryDelay), retry.DelayType(retry.BackOffDelay), retry.LastErrorOnly(true))
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("doc_id", docID).Msg("profile upload failed")
		return ErrSearch.Err(err)
	}

	log.Ctx(ctx).Info().Str("doc_id", docID).Int("bytes", len(profile)).Msg("profile indexed")
	return nil
}
