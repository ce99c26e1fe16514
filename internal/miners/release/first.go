package release

import (
	"context"
	"fmt"
	"time"

	"github.com/shipfacts/shipfacts/internal/dbgate"
	"github.com/shipfacts/shipfacts/internal/models"
)

// The first observed release of a (repository, match kind) pair carries the
// repository's entire prior history, so its lead times are meaningless; it is
// hidden from metrics rather than deleted.

func hiddenKey(rel *models.Release) string {
	return fmt.Sprintf("%s\x00%s\x00%d", rel.RepositoryFullName, rel.MatchedBy, rel.NodeID)
}

// hiddenReleases loads the hidden markers of a repository.
func (m *Miner) hiddenReleases(ctx context.Context, repo string) (map[string]bool, error) {
	rows, err := m.pdb.Query(ctx, `
		SELECT repository_full_name, release_match, release_node_id
		FROM hidden_releases WHERE repository_full_name = $1`, repo)
	if err != nil {
		return nil, fmt.Errorf("failed to load hidden releases of %s: %w", repo, err)
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var rel models.Release
		var match string
		if err := rows.Scan(&rel.RepositoryFullName, &match, &rel.NodeID); err != nil {
			return nil, fmt.Errorf("failed to scan hidden release: %w", err)
		}
		rel.MatchedBy = models.ReleaseMatch(match)
		out[hiddenKey(&rel)] = true
	}
	return out, rows.Err()
}

// DiscoverFirstReleases finds the earliest release per (repository, match
// kind) across the full history of each repository.
func (m *Miner) DiscoverFirstReleases(ctx context.Context, account int64, repos []string) ([]models.Release, error) {
	mined, err := m.Mine(ctx, account, repos, time.Unix(0, 0).UTC(), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	type key struct {
		repo  string
		match models.ReleaseMatch
	}
	first := map[key]models.Release{}
	for _, mr := range mined {
		k := key{mr.Release.RepositoryFullName, mr.Release.MatchedBy}
		if prev, ok := first[k]; !ok || mr.Release.PublishedAt.Before(prev.PublishedAt) {
			first[k] = mr.Release
		}
	}
	out := make([]models.Release, 0, len(first))
	for _, rel := range first {
		out = append(out, rel)
	}
	return out, nil
}

// HideFirstReleases marks releases hidden so subsequent mining excludes them.
// Returns the number of newly hidden releases.
func (m *Miner) HideFirstReleases(ctx context.Context, pdb *dbgate.Pool, releases []models.Release) (int, error) {
	hidden := 0
	for _, rel := range releases {
		affected, err := pdb.Exec(ctx, `
			INSERT INTO hidden_releases (repository_full_name, release_match, release_node_id)
			VALUES ($1, $2, $3)
			ON CONFLICT (repository_full_name, release_match, release_node_id) DO NOTHING`,
			rel.RepositoryFullName, string(rel.MatchedBy), rel.NodeID)
		if err != nil {
			return hidden, fmt.Errorf("failed to hide release %d: %w", rel.NodeID, err)
		}
		hidden += int(affected)
	}
	return hidden, nil
}
