package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the short-term cache tier holding mined bundles between
// requests. Values are JSON, keyed by mining fingerprints.
type Client struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewClient connects to the cache tier and fails fast when unreachable.
func NewClient(ctx context.Context, addr, password string, ttl time.Duration) (*Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("cache address missing")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to cache at %s: %w", addr, err)
	}
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	logger := slog.Default().With("component", "cache")
	logger.Info("cache connected", "addr", addr)
	return &Client{client: client, logger: logger, ttl: ttl}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close cache client: %w", err)
	}
	return nil
}

// Get retrieves a cached value into target. The bool result distinguishes a
// miss from an error.
func (c *Client) Get(ctx context.Context, key string, target any) (bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		c.logger.Debug("cache miss", "key", key)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed for key %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(val), target); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value for key %s: %w", key, err)
	}
	c.logger.Debug("cache hit", "key", key)
	return true, nil
}

// Set stores a value with the default TTL.
func (c *Client) Set(ctx context.Context, key string, value any) error {
	return c.SetWithTTL(ctx, key, value, c.ttl)
}

// SetWithTTL stores a value with a custom TTL.
func (c *Client) SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set failed for key %s: %w", key, err)
	}
	c.logger.Debug("cache set", "key", key, "ttl", ttl)
	return nil
}

// GetBytes retrieves an opaque payload without JSON decoding; mined fact
// payloads carry their own binary format.
func (c *Client) GetBytes(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get failed for key %s: %w", key, err)
	}
	return val, true, nil
}

// SetBytes stores an opaque payload with the default TTL.
func (c *Client) SetBytes(ctx context.Context, key string, data []byte) error {
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set failed for key %s: %w", key, err)
	}
	return nil
}

// Delete removes a key.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("cache delete failed for key %s: %w", key, err)
	}
	return nil
}
