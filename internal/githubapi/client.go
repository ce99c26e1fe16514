// Package githubapi wraps the GitHub REST client used by the heater to
// refresh repository names. Node ids are immutable; full names change when a
// repository is renamed or transferred, so stored names are refreshed from
// upstream before each heating round.
package githubapi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/go-github/v57/github"
	"golang.org/x/time/rate"
)

// Client is a rate-limited GitHub API client.
type Client struct {
	client  *github.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a client authenticated with the given token, limited to
// rateLimit requests per second.
func NewClient(token string, rateLimit int) *Client {
	return &Client{
		client:  github.NewClient(nil).WithAuthToken(token),
		limiter: rate.NewLimiter(rate.Limit(rateLimit), 1),
		logger:  slog.Default().With("component", "githubapi"),
	}
}

// RepositoryName resolves the current full name of a repository by its
// numeric id.
func (c *Client) RepositoryName(ctx context.Context, id int64) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	repo, _, err := c.client.Repositories.GetByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("fetch repository %d: %w", id, err)
	}
	return repo.GetFullName(), nil
}

// RefreshNames resolves the current full names of a batch of repositories.
// Repositories that upstream no longer knows are skipped with a warning; a
// rename is logged at info level.
func (c *Client) RefreshNames(ctx context.Context, known map[int64]string) (map[int64]string, error) {
	fresh := make(map[int64]string, len(known))
	for id, stored := range known {
		name, err := c.RepositoryName(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("repository lookup failed", "id", id, "stored", stored, "error", err)
			continue
		}
		if name != stored {
			c.logger.Info("repository renamed", "id", id, "from", stored, "to", name)
		}
		fresh[id] = name
	}
	return fresh, nil
}
