package cache

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/singleflight"

	"github.com/shipfacts/shipfacts/internal/dbgate"
	"github.com/shipfacts/shipfacts/internal/reqctx"
)

// FactCache is the durable side of the caching tier: expensively mined facts
// persisted in the precomputed store, keyed by fingerprint. A format-version
// mismatch reads as a miss and the stale row is overwritten on the next Put.
type FactCache struct {
	pdb           *dbgate.Pool
	front         *Client
	formatVersion int
	group         singleflight.Group
	logger        *slog.Logger
}

// NewFactCache binds the cache to the precomputed store.
func NewFactCache(pdb *dbgate.Pool, formatVersion int) *FactCache {
	return &FactCache{
		pdb:           pdb,
		formatVersion: formatVersion,
		logger:        slog.Default().With("component", "factcache"),
	}
}

// WithFront adds a short-term tier consulted before the durable store.
// Fingerprints encode the format version, so front entries never serve stale
// layouts.
func (c *FactCache) WithFront(front *Client) *FactCache {
	c.front = front
	return c
}

// Get fetches a payload by fingerprint. A missing row or a stale format
// version both count as a miss on the fingerprint's topic.
func (c *FactCache) Get(ctx context.Context, fp Fingerprint) ([]byte, bool, error) {
	if c.front != nil {
		payload, ok, err := c.front.GetBytes(ctx, fp.String())
		if err != nil {
			c.logger.Warn("front tier read failed", "topic", fp.Topic, "error", err)
		} else if ok {
			c.hit(ctx, fp.Topic)
			return payload, true, nil
		}
	}
	var payload []byte
	var version int
	err := c.pdb.QueryRow(ctx,
		`SELECT payload, format_version FROM fact_cache WHERE fingerprint = $1`,
		[]any{&payload, &version}, fp.String())
	if err != nil {
		if isNoRows(err) {
			c.miss(ctx, fp.Topic)
			return nil, false, nil
		}
		return nil, false, err
	}
	if version != c.formatVersion {
		c.logger.Debug("format version mismatch", "topic", fp.Topic,
			"stored", version, "current", c.formatVersion)
		c.miss(ctx, fp.Topic)
		return nil, false, nil
	}
	c.hit(ctx, fp.Topic)
	if c.front != nil {
		if err := c.front.SetBytes(ctx, fp.String(), payload); err != nil {
			c.logger.Warn("front tier backfill failed", "topic", fp.Topic, "error", err)
		}
	}
	return payload, true, nil
}

// Put stores a payload, overwriting any previous entry for the fingerprint.
func (c *FactCache) Put(ctx context.Context, fp Fingerprint, payload []byte) error {
	_, err := c.pdb.Exec(ctx, `
		INSERT INTO fact_cache (fingerprint, payload, format_version, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (fingerprint)
		DO UPDATE SET payload = $2, format_version = $3, updated_at = NOW()`,
		fp.String(), payload, c.formatVersion)
	if err != nil {
		return err
	}
	if c.front != nil {
		if err := c.front.SetBytes(ctx, fp.String(), payload); err != nil {
			c.logger.Warn("front tier write failed", "topic", fp.Topic, "error", err)
		}
	}
	return nil
}

// Do returns the cached payload for fp or builds it exactly once, coalescing
// concurrent callers for the same fingerprint on one in-flight build.
func (c *FactCache) Do(ctx context.Context, fp Fingerprint, build func(context.Context) ([]byte, error)) ([]byte, error) {
	if payload, ok, err := c.Get(ctx, fp); err != nil {
		return nil, err
	} else if ok {
		return payload, nil
	}
	v, err, _ := c.group.Do(fp.String(), func() (any, error) {
		// re-check: another caller may have completed the build while this
		// one was waiting on the flight group
		if payload, ok, err := c.Get(ctx, fp); err != nil {
			return nil, err
		} else if ok {
			return payload, nil
		}
		payload, err := build(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Put(ctx, fp, payload); err != nil {
			return nil, err
		}
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *FactCache) hit(ctx context.Context, topic string) {
	if rc := reqctx.From(ctx); rc != nil {
		rc.AddHits(topic, 1)
	}
}

func (c *FactCache) miss(ctx context.Context, topic string) {
	if rc := reqctx.From(ctx); rc != nil {
		rc.AddMisses(topic, 1)
	}
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
