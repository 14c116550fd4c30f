// Package dbmanager provides functionality for managing the PostgreSQL connection pool.
package dbmanager

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/lib/pq"

	"github.com/rs/zerolog/log"
)

var ErrUnsupportedDbType = errors.New("unsupported database type")

// postgresConn represents a checked-out connection to the PostgreSQL database.
type postgresConn struct {
	conn   *sql.Conn
	cancel context.CancelFunc
	pool   *postgresPool
}

// postgresPool represents a pool of PostgreSQL database connections.
type postgresPool struct {
	connRequests uint64
	connReturns  uint64
	db           *sql.DB
}

// sessionParams bound every statement on a checked-out connection. A stuck
// stored procedure call surfaces as an error instead of holding a worker.
var sessionParams = map[string]string{
	"lock_timeout":                        "5s",
	"statement_timeout":                   "30s",
	"idle_in_transaction_session_timeout": "30s",
}

// NewPostgresqlPool creates a new PostgreSQL connection pool for the given DSN.
func NewPostgresqlPool(dsn string) (Pool, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Error().Err(err).Msg("failed to open db")
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool settings
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	err = sqlDB.Ping()
	if err != nil {
		log.Error().Err(err).Msg("failed to ping db")
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &postgresPool{
		db: sqlDB,
	}, nil
}

// Conn returns a new connection from the pool with session timeouts applied.
func (p *postgresPool) Conn(ctx context.Context) (Conn, error) {
	ctx, cancel := context.WithCancel(ctx)

	conn, err := p.db.Conn(ctx)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to obtain connection")
		cancel()
		return nil, fmt.Errorf("failed to obtain database connection: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			cancel()
			conn.Close()
			log.Ctx(ctx).Error().Interface("panic", r).Msg("recovered from panic while setting up connection")
		}
	}()

	for param, value := range sessionParams {
		// For SET commands, both the parameter and the value need proper quoting
		query := fmt.Sprintf("SET %s = %s", pq.QuoteIdentifier(param), pq.QuoteLiteral(value))
		_, err = conn.ExecContext(ctx, query)
		if err != nil {
			cancel()
			conn.Close()
			return nil, fmt.Errorf("failed to set %s: %w", param, err)
		}
	}

	atomic.AddUint64(&p.connRequests, 1)
	return &postgresConn{
		conn:   conn,
		cancel: cancel,
		pool:   p,
	}, nil
}

// Stats returns the number of connection requests and returns made to the pool.
func (p *postgresPool) Stats() (requests, returns uint64) {
	return atomic.LoadUint64(&p.connRequests), atomic.LoadUint64(&p.connReturns)
}

// OpenConns returns the number of open connections in the pool.
func (p *postgresPool) OpenConns() int {
	return p.db.Stats().OpenConnections
}

// Close shuts down the pool.
func (p *postgresPool) Close() error {
	return p.db.Close()
}

// Close returns the connection back to the pool.
func (h *postgresConn) Close(ctx context.Context) {
	if h.conn == nil {
		return
	}

	h.conn.Close()
	if h.cancel != nil {
		h.cancel()
	}

	atomic.AddUint64(&h.pool.connReturns, 1)
}

// Conn returns the underlying connection.
func (h *postgresConn) Conn() *sql.Conn {
	return h.conn
}
