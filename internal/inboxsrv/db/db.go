// Package db provides database interfaces and implementations for the inbox
// service. It defines three interfaces:
// - CommitLedger: the commit fingerprint ledger behind project resolution
// - DevQueue: the developer job queue driving combined report generation
// - OwnerDirectory: contact emails and the submission log
package db

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/devatlas/devatlas/internal/common/apperrors"
	"github.com/devatlas/devatlas/internal/common/uuid"
	"github.com/devatlas/devatlas/internal/inboxsrv/db/dbmanager"
	"github.com/devatlas/devatlas/internal/inboxsrv/db/dberror"
	"github.com/devatlas/devatlas/internal/inboxsrv/db/models"
	"github.com/devatlas/devatlas/internal/inboxsrv/db/postgresql"
)

// CommitLedger resolves and records commit ownership. It answers the one
// question project resolution needs: which known projects have these commit
// hashes, and when were those commits made.
type CommitLedger interface {
	FindProjectsByCommits(ctx context.Context, commitHashes []string) ([]models.CommitOwnership, apperrors.Error)
	AddCommits(ctx context.Context, ownerID, projectID string, commitHashes []string, commitTimestamps []time.Time) apperrors.Error
	LatestProjectCommit(ctx context.Context, ownerID, projectID string) (time.Time, apperrors.Error)
}

// DevQueue is the developer job queue. Claims are correlated by an in-flight
// id minted per batch, which is also what makes a stale claim expire.
type DevQueue interface {
	ClaimJobs(ctx context.Context, inFlightID uuid.UUID, maxJobs int32) ([]models.DevJob, apperrors.Error)
	CompleteJob(ctx context.Context, ownerID string, inFlightID uuid.UUID, ghLogin, ghLoginGistValidation, ghNodeID string) apperrors.Error
	FailJob(ctx context.Context, ownerID string, inFlightID uuid.UUID) apperrors.Error
	QueueForUpdate(ctx context.Context, ownerID string, gistHint *string) apperrors.Error
}

// OwnerDirectory stores per-owner contact details and the submission audit
// log.
type OwnerDirectory interface {
	AddEmail(ctx context.Context, ownerID, email string, isPrimary bool) apperrors.Error
	AddSubmissionLog(ctx context.Context, ownerID, sourceIP string, payloadBytes int64) apperrors.Error
}

// Database combines the three interfaces over one checked-out connection.
// It is not safe for concurrent use; check out one per unit of work and
// Close it when done.
type Database interface {
	CommitLedger
	DevQueue
	OwnerDirectory

	// Close returns the connection to the pool.
	Close(ctx context.Context)
}

// DB is the database handle held by the runtime. It owns the connection
// pool.
type DB struct {
	pool dbmanager.Pool
}

// New opens the connection pool for the given DSN.
func New(ctx context.Context, dsn string) (*DB, error) {
	pool, err := dbmanager.NewPool(ctx, "postgresql", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{pool: pool}, nil
}

// Conn checks a connection out of the pool and returns the query interfaces
// bound to it.
func (d *DB) Conn(ctx context.Context) (Database, apperrors.Error) {
	if d == nil || d.pool == nil {
		return nil, dberror.ErrNoConnection
	}

	conn, err := d.pool.Conn(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("unable to get db connection")
		return nil, dberror.ErrNoConnection.Err(err)
	}

	lm, qm, om := postgresql.NewInboxDb(conn)
	return &inboxDatabase{
		CommitLedger:   lm,
		DevQueue:       qm,
		OwnerDirectory: om,
		conn:           conn,
	}, nil
}

// Stats returns the pool's connection request and return counters.
func (d *DB) Stats() (requests, returns uint64) {
	if d == nil || d.pool == nil {
		return 0, 0
	}
	return d.pool.Stats()
}

// Close shuts the pool down.
func (d *DB) Close() error {
	if d == nil || d.pool == nil {
		return nil
	}
	return d.pool.Close()
}

type inboxDatabase struct {
	CommitLedger
	DevQueue
	OwnerDirectory
	conn dbmanager.Conn
}

func (db *inboxDatabase) Close(ctx context.Context) {
	db.conn.Close(ctx)
}
