// Package inboxsrv wires the inbox services together. The Runtime handle
// owns the shared clients; daemons receive it by reference instead of
// reaching for globals.
package inboxsrv

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/devatlas/devatlas/internal/inboxsrv/blobstore"
	"github.com/devatlas/devatlas/internal/inboxsrv/config"
	"github.com/devatlas/devatlas/internal/inboxsrv/db"
	"github.com/devatlas/devatlas/internal/inboxsrv/declog"
	"github.com/devatlas/devatlas/internal/inboxsrv/ghlogin"
	"github.com/devatlas/devatlas/internal/inboxsrv/search"
)

// decisionLogFlushEvery bounds how many routing decisions can be lost on a
// crash.
const decisionLogFlushEvery = 16

// Runtime holds the clients shared by the daemons, constructed once at
// startup. Decisions is nil unless a decision log path is configured.
type Runtime struct {
	Cfg       *config.Config
	DB        *db.DB
	Store     blobstore.Store
	Search    *search.Client
	Logins    *ghlogin.Validator
	Decisions *declog.Log
}

// NewRuntime connects the database pool and the object store and builds the
// outbound clients. The caller owns the handle and must Close it.
func NewRuntime(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	pool, err := db.New(ctx, cfg.Postgres.DSN())
	if err != nil {
		return nil, err
	}

	store, err := blobstore.NewS3Store(ctx, blobstore.S3Options{
		Region:          cfg.ObjectStore.Region,
		Endpoint:        cfg.ObjectStore.Endpoint,
		AccessKeyID:     cfg.ObjectStore.AccessKeyID,
		SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}

	rt := &Runtime{
		Cfg:    cfg,
		DB:     pool,
		Store:  store,
		Search: search.NewClient(&cfg.Search),
		Logins: ghlogin.NewValidator(&cfg.GitHub),
	}

	if cfg.DecisionLog.Path != "" {
		decisions, err := declog.Open(cfg.DecisionLog.Path, decisionLogFlushEvery)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.Decisions = decisions
	}

	return rt, nil
}

// Close flushes the decision log and releases the database pool.
func (r *Runtime) Close() {
	if r.Decisions != nil {
		if err := r.Decisions.Close(); err != nil {
			log.Error().Err(err).Msg("closing decision log")
		}
	}
	if r.DB != nil {
		if err := r.DB.Close(); err != nil {
			log.Error().Err(err).Msg("closing database pool")
		}
	}
}
