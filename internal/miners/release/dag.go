package release

import (
	"context"
	"fmt"

	"github.com/shipfacts/shipfacts/internal/dbgate"
	"github.com/shipfacts/shipfacts/internal/models"
)

// DAGFormatVersion stamps the persisted commit adjacency rows.
const DAGFormatVersion = 2

// DAG is the commit ancestry of one repository. It accretes: new commits
// extend it, nothing is ever removed.
type DAG struct {
	Repository string
	parents    map[string][]string
}

// NewDAG creates an empty ancestry for a repository.
func NewDAG(repo string) *DAG {
	return &DAG{Repository: repo, parents: map[string][]string{}}
}

// Extend adds commits and their parent edges.
func (d *DAG) Extend(commits []models.Commit) {
	for _, c := range commits {
		d.parents[c.SHA] = c.ParentSHAs
	}
}

// Len returns the number of known commits.
func (d *DAG) Len() int { return len(d.parents) }

// Ancestry walks from head toward the roots, stopping at commits in the stop
// set, and returns every commit visited. Unknown parents terminate the walk
// silently: the ancestry may be partial while mining catches up.
func (d *DAG) Ancestry(head string, stop map[string]bool) []string {
	if _, ok := d.parents[head]; !ok {
		return nil
	}
	var out []string
	seen := map[string]bool{}
	queue := []string{head}
	for len(queue) > 0 {
		sha := queue[0]
		queue = queue[1:]
		if seen[sha] || stop[sha] {
			continue
		}
		seen[sha] = true
		if _, known := d.parents[sha]; !known {
			continue
		}
		out = append(out, sha)
		queue = append(queue, d.parents[sha]...)
	}
	return out
}

// LoadDAG reads the persisted ancestry of a repository from the precomputed
// store.
func LoadDAG(ctx context.Context, pdb *dbgate.Pool, repo string) (*DAG, error) {
	d := NewDAG(repo)
	rows, err := pdb.Query(ctx, `
		SELECT sha, parents FROM commit_history
		WHERE repository_full_name = $1 AND format_version = $2`,
		repo, DAGFormatVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to load commit history of %s: %w", repo, err)
	}
	defer rows.Close()
	for rows.Next() {
		var sha string
		var parents []string
		if err := rows.Scan(&sha, &parents); err != nil {
			return nil, fmt.Errorf("failed to scan commit history row: %w", err)
		}
		d.parents[sha] = parents
	}
	return d, rows.Err()
}

// SaveDAG upserts new adjacency rows. Existing rows never change: commit
// parents are immutable.
func SaveDAG(ctx context.Context, pdb *dbgate.Pool, d *DAG) error {
	for sha, parents := range d.parents {
		if _, err := pdb.Exec(ctx, `
			INSERT INTO commit_history (repository_full_name, format_version, sha, parents)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (repository_full_name, format_version, sha) DO NOTHING`,
			d.Repository, DAGFormatVersion, sha, parents); err != nil {
			return fmt.Errorf("failed to save commit history of %s: %w", d.Repository, err)
		}
	}
	return nil
}
