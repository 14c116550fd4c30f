package dbmanager

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog/log"
)

// Pool hands out managed database connections. Stored procedures are the
// only write path, so a connection is checked out per unit of work and
// returned as soon as the work is done.
type Pool interface {
	// Conn returns a new connection to the database.
	Conn(ctx context.Context) (Conn, error)
	// Stats returns the number of connection requests and returns.
	Stats() (requests, returns uint64)
	// Close shuts the pool down.
	Close() error
}

type Conn interface {
	// Conn returns the underlying *sql.Conn. Do not close this directly.
	// Use Conn.Close(ctx) to return it to the pool.
	Conn() *sql.Conn
	// Close returns the connection back to the pool.
	Close(ctx context.Context)
}

// NewPool opens a connection pool for the given database type.
func NewPool(ctx context.Context, dbtype string, dsn string) (Pool, error) {
	switch dbtype {
	case "postgresql":
		pool, err := NewPostgresqlPool(dsn)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to create PostgreSQL pool")
			return nil, err
		}
		return pool, nil
	}
	return nil, ErrUnsupportedDbType
}
