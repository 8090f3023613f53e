// Package database persists clients and call records in Postgres. Call
// history, recordings, and results live as JSONB documents on the call
// row, appended turn by turn as the dialog progresses.
package database

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type DB struct {
	Pool *pgxpool.Pool
	log  zerolog.Logger
}

// Connect opens the connection pool and verifies it answers before
// returning. maxConns <= 0 keeps the driver default.
func Connect(ctx context.Context, databaseURL string, maxConns int, log zerolog.Logger) (*DB, error) {
	pc, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		pc.MaxConns = int32(maxConns)
	}
	if pc.MaxConns >= 4 {
		pc.MinConns = pc.MaxConns / 4
	}
	// Webhook traffic is bursty; idle connections between calls are
	// cheaper than reconnect storms when a batch dials out.
	pc.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	log.Info().
		Str("dsn", redactDSN(databaseURL)).
		Int32("max_conns", pc.MaxConns).
		Msg("connected to postgres")

	return &DB{Pool: pool, log: log}, nil
}

// HealthCheck answers the health endpoint with a bounded ping so a
// stalled database cannot hang the endpoint.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return db.Pool.Ping(ctx)
}

func (db *DB) Close() {
	db.log.Info().Msg("database pool closed")
	db.Pool.Close()
}

// redactDSN strips the password from a connection URL for logging.
func redactDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "(unparseable dsn)"
	}
	return u.Redacted()
}
