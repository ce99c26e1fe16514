package dbgate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool wraps a pgx connection pool for the high-volume read stores
// (metadata, precomputed). All entry points retry transient failures.
type Pool struct {
	name   string
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPool creates a pgx pool from a DSN and verifies connectivity.
func OpenPool(ctx context.Context, name, dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%s: empty DSN", name)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s pool: %w", name, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", name, err)
	}
	logger := slog.Default().With("component", name)
	logger.Info("store connected")
	return &Pool{name: name, pool: pool, logger: logger}, nil
}

// Close closes the pool.
func (p *Pool) Close() {
	p.pool.Close()
	p.logger.Info("store closed")
}

// HealthCheck verifies connectivity.
func (p *Pool) HealthCheck(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	return nil
}

// Query runs a read query with retries and latency accounting.
func (p *Pool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	var rows pgx.Rows
	err := withRetry(ctx, p.name, false, func() error {
		var err error
		rows, err = p.pool.Query(ctx, sql, args...)
		return err
	})
	return rows, err
}

// QueryRow runs a single-row query. Errors surface on Scan, so the retry
// wraps the scan itself.
func (p *Pool) QueryRow(ctx context.Context, sql string, dest []any, args ...any) error {
	return withRetry(ctx, p.name, false, func() error {
		return p.pool.QueryRow(ctx, sql, args...).Scan(dest...)
	})
}

// Exec runs a statement with retries.
func (p *Pool) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	var affected int64
	err := withRetry(ctx, p.name, false, func() error {
		tag, err := p.pool.Exec(ctx, sql, args...)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	return affected, err
}

// Tx runs fn inside a transaction. Statements inside the transaction are not
// retried individually; the whole fn may be re-run by the caller if needed.
func (p *Pool) Tx(ctx context.Context, fn func(pgx.Tx) error) error {
	return withRetry(ctx, p.name, true, func() error {
		tx, err := p.pool.Begin(ctx)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		return tx.Commit(ctx)
	})
}
