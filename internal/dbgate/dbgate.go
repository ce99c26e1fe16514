// Package dbgate provides uniform access to the four logical stores backing
// the analytics pipeline: tenant state, metadata ingestion, precomputed facts
// and the persistentdata event store. Every call retries transient failures
// on a bounded schedule and charges its wall time to the request carrier.
package dbgate

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/shipfacts/shipfacts/internal/config"
	"github.com/shipfacts/shipfacts/internal/reqctx"
)

// Store ids used for elapsed-time accounting and logging.
const (
	StoreState       = "sdb"
	StoreMetadata    = "mdb"
	StorePrecomputed = "pdb"
	StoreEvents      = "rdb"
)

// retrySchedule is the wait sequence between attempts on transient errors.
// A failure after the last entry propagates.
var retrySchedule = []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1400 * time.Millisecond}

// Gateway bundles the four logical stores.
type Gateway struct {
	State       *SQLStore
	Metadata    *Pool
	Precomputed *Pool
	Events      *SQLStore
}

// Connect opens all four stores and verifies connectivity, failing fast.
func Connect(ctx context.Context, cfg config.StoresConfig) (*Gateway, error) {
	sdb, err := OpenSQL(ctx, StoreState, cfg.StateDSN)
	if err != nil {
		return nil, err
	}
	mdb, err := OpenPool(ctx, StoreMetadata, cfg.MetadataDSN)
	if err != nil {
		sdb.Close()
		return nil, err
	}
	pdb, err := OpenPool(ctx, StorePrecomputed, cfg.PrecomputedDSN)
	if err != nil {
		sdb.Close()
		mdb.Close()
		return nil, err
	}
	rdb, err := OpenSQL(ctx, StoreEvents, cfg.PersistentdataDSN)
	if err != nil {
		sdb.Close()
		mdb.Close()
		pdb.Close()
		return nil, err
	}
	return &Gateway{State: sdb, Metadata: mdb, Precomputed: pdb, Events: rdb}, nil
}

// Close releases every connection pool.
func (g *Gateway) Close() {
	g.State.Close()
	g.Metadata.Close()
	g.Precomputed.Close()
	g.Events.Close()
}

// withRetry runs fn under the transient-error retry schedule, observing
// cancellation between attempts and charging elapsed time to the request.
func withRetry(ctx context.Context, store string, inTx bool, fn func() error) error {
	start := time.Now()
	defer func() {
		if rc := reqctx.From(ctx); rc != nil {
			rc.AddElapsed(store, time.Since(start))
		}
	}()
	if inTx {
		// retrying inside a transaction would replay half of it
		return fn()
	}
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil || !isTransient(err) {
			return err
		}
		if attempt >= len(retrySchedule) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retrySchedule[attempt]):
		}
	}
}

// isTransient reports whether the error is worth another attempt: network
// failures and deadline expiries, per the outer retry policy.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
