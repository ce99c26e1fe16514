package dbgate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLStore wraps sqlx for the low-volume stores (state, events). Both accept
// either a postgres DSN or a sqlite:// path; the embedded engine only allows
// one writer at a time, which writeMu enforces.
type SQLStore struct {
	name    string
	db      *sqlx.DB
	logger  *slog.Logger
	writeMu *sync.Mutex // non-nil on sqlite
}

// OpenSQL opens a state-class store from a DSN and verifies connectivity.
func OpenSQL(ctx context.Context, name, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%s: empty DSN", name)
	}
	driver := "postgres"
	var writeMu *sync.Mutex
	if path, ok := strings.CutPrefix(dsn, "sqlite://"); ok {
		driver = "sqlite3"
		dsn = path
		writeMu = &sync.Mutex{}
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", name, err)
	}
	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
		db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	} else {
		db.SetMaxOpenConns(16)
		db.SetMaxIdleConns(4)
		db.SetConnMaxLifetime(5 * time.Minute)
	}
	logger := slog.Default().With("component", name)
	logger.Info("store connected", "driver", driver)
	return &SQLStore{name: name, db: db, logger: logger, writeMu: writeMu}, nil
}

// In expands IN (?) clauses for slice arguments. The result still uses ?
// placeholders; Select and friends rebind for the target dialect.
func In(query string, args ...any) (string, []any, error) {
	return sqlx.In(query, args...)
}

// Close closes the store.
func (s *SQLStore) Close() error {
	err := s.db.Close()
	s.logger.Info("store closed")
	return err
}

// HealthCheck verifies connectivity.
func (s *SQLStore) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%s health check failed: %w", s.name, err)
	}
	return nil
}

// Rebind translates ? placeholders to the store's dialect.
func (s *SQLStore) Rebind(query string) string {
	return s.db.Rebind(query)
}

// Select runs a query and scans all rows into dest (a pointer to a slice).
func (s *SQLStore) Select(ctx context.Context, dest any, query string, args ...any) error {
	return withRetry(ctx, s.name, false, func() error {
		return s.db.SelectContext(ctx, dest, s.db.Rebind(query), args...)
	})
}

// Get runs a query and scans the first row into dest.
func (s *SQLStore) Get(ctx context.Context, dest any, query string, args ...any) error {
	return withRetry(ctx, s.name, false, func() error {
		return s.db.GetContext(ctx, dest, s.db.Rebind(query), args...)
	})
}

// Exec runs a statement. Writes on sqlite are serialized.
func (s *SQLStore) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	if s.writeMu != nil {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
	}
	var affected int64
	err := withRetry(ctx, s.name, false, func() error {
		res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
		if err != nil {
			return err
		}
		affected, _ = res.RowsAffected()
		return nil
	})
	return affected, err
}

// Tx runs fn inside a transaction, serialized on sqlite. Statements inside
// the transaction are not retried.
func (s *SQLStore) Tx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if s.writeMu != nil {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
	}
	return withRetry(ctx, s.name, true, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}
