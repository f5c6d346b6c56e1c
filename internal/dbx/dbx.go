// Package dbx is the Persistence Facade: a pgx/v5 pool wrapper exposing one
// typed method per operation the core consumes, with DB connectivity
// guarded by a circuit breaker wrapping every pool operation.
package dbx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/consensus-engine/internal/obsmetrics"
	"github.com/ajitpratap0/consensus-engine/internal/types"
)

const (
	cbMinRequests     = 10
	cbFailureRatio    = 0.6
	cbOpenTimeout     = 15 * time.Second
	cbHalfOpenMaxReqs = 5
	cbCountInterval   = 10 * time.Second
)

// PoolIface is the subset of *pgxpool.Pool every dbx method needs,
// generalized from internal/risk.PoolInterface so tests can substitute
// pgxmock.Pool in place of a real connection.
type PoolIface interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Ping(ctx context.Context) error
	Close()
}

// DB wraps a pgx/v5 connection pool with circuit-breaker-guarded
// operations, mirroring internal/db.DB's ExecuteWithCircuitBreaker pattern.
type DB struct {
	pool    PoolIface
	breaker *gobreaker.CircuitBreaker
}

// New opens a pool against databaseURL (resolved by the caller, preferring
// internal/secrets over DATABASE_URL, mirroring db.go's fallback chain).
func New(ctx context.Context, databaseURL string) (*DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("dbx: DATABASE_URL not set and no secret store configured")
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("dbx: parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("dbx: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("dbx: ping database: %w", err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "database",
		MaxRequests: cbHalfOpenMaxReqs,
		Interval:    cbCountInterval,
		Timeout:     cbOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cbMinRequests && failureRatio >= cbFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("database circuit breaker state change")
			obsmetrics.DatabaseCircuitBreakerState.Set(float64(to))
		},
	})

	log.Info().Msg("database connection pool created")
	return &DB{pool: pool, breaker: breaker}, nil
}

// Close releases the underlying pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// Health pings the database.
func (db *DB) Health(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Pool exposes the underlying pool interface for packages that need finer
// control.
func (db *DB) Pool() PoolIface {
	return db.pool
}

// NewWithPool builds a DB around an already-open pool (or a pgxmock.Pool in
// tests), with the same circuit breaker settings New uses.
func NewWithPool(pool PoolIface) *DB {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "database",
		MaxRequests: cbHalfOpenMaxReqs,
		Interval:    cbCountInterval,
		Timeout:     cbOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cbMinRequests && failureRatio >= cbFailureRatio
		},
	})
	return &DB{pool: pool, breaker: breaker}
}

const opGuard = "dbx: circuit breaker"

// guard executes op through the circuit breaker. A breaker-open state
// becomes a types.KindTransientIO error; a plain error from fn is wrapped
// the same way. An error fn already typed via types.NewError (e.g.
// KindDuplicateConsensus, KindNotFound) passes through unchanged so callers
// can branch on its real kind.
func guard[T any](db *DB, op string, fn func() (T, error)) (T, error) {
	var zero T
	result, err := db.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState {
			return zero, types.NewError(types.KindTransientIO, op, fmt.Errorf("%s: circuit breaker open", opGuard))
		}
		var typed *types.Error
		if errors.As(err, &typed) {
			return zero, err
		}
		return zero, types.NewError(types.KindTransientIO, op, err)
	}
	return result.(T), nil
}

// ResolveDSN returns databaseURL if non-empty, otherwise envFallback. Kept
// as a thin seam so cmd/* binaries can prefer internal/secrets' Vault-loaded
// value over DATABASE_URL without dbx depending on secrets construction.
func ResolveDSN(databaseURL, envFallback string) string {
	if databaseURL != "" {
		return databaseURL
	}
	return envFallback
}
