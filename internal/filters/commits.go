package filters

import (
	"context"
	"fmt"
	"time"

	"github.com/shipfacts/shipfacts/internal/dbgate"
	"github.com/shipfacts/shipfacts/internal/errors"
	"github.com/shipfacts/shipfacts/internal/models"
)

// CommitProperty selects which commits the filterCommits operation returns.
type CommitProperty string

const (
	// CommitsBypassingPRs keeps commits pushed outside of any pull request.
	CommitsBypassingPRs CommitProperty = "bypassing_prs"
	// CommitsNoPRMerges keeps every commit except PR merge commits.
	CommitsNoPRMerges CommitProperty = "no_pr_merges"
	// CommitsEverything keeps all commits in the window.
	CommitsEverything CommitProperty = "everything"
)

// CommitsOptions scope the filterCommits operation.
type CommitsOptions struct {
	Account       int64
	DateFrom      time.Time
	DateTo        time.Time
	In            []string
	Property      CommitProperty
	WithAuthor    []string
	WithCommitter []string
}

// Commits lists the commits in the window matching the property filter.
func Commits(ctx context.Context, mdb *dbgate.Pool, metaIDs []int64, opts CommitsOptions) ([]*models.Commit, error) {
	if len(opts.In) == 0 {
		return []*models.Commit{}, nil
	}
	query, args, err := commitsQuery(metaIDs, opts)
	if err != nil {
		return nil, err
	}
	rows, err := mdb.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch commits: %w", err)
	}
	defer rows.Close()
	var out []*models.Commit
	for rows.Next() {
		var c models.Commit
		if err := rows.Scan(&c.NodeID, &c.RepositoryFullName, &c.SHA, &c.ParentSHAs,
			&c.AuthorLogin, &c.CommitterLogin, &c.Message, &c.CommittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan commit: %w", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate commits: %w", err)
	}
	if out == nil {
		out = []*models.Commit{}
	}
	return out, nil
}

func commitsQuery(metaIDs []int64, opts CommitsOptions) (string, []any, error) {
	query := `SELECT c.node_id, c.repository_full_name, c.sha, c.parent_shas,
	       c.author_login, c.committer_login, c.message, c.committed_at
	FROM github.commits c
	WHERE c.acc_id = ANY($1)
	  AND c.repository_full_name = ANY($2)
	  AND c.committed_at >= $3 AND c.committed_at < $4`
	args := []any{metaIDs, opts.In, opts.DateFrom, opts.DateTo}
	switch opts.Property {
	case CommitsBypassingPRs:
		query += `
	  AND NOT EXISTS (SELECT 1 FROM github.pull_request_commits pc
	                  WHERE pc.acc_id = ANY($1) AND pc.commit_node_id = c.node_id)
	  AND NOT EXISTS (SELECT 1 FROM github.pull_requests pr
	                  WHERE pr.acc_id = ANY($1) AND pr.merge_commit_sha = c.sha)`
	case CommitsNoPRMerges:
		query += `
	  AND NOT EXISTS (SELECT 1 FROM github.pull_requests pr
	                  WHERE pr.acc_id = ANY($1) AND pr.merge_commit_sha = c.sha)`
	case CommitsEverything, "":
	default:
		return "", nil, errors.Invalid(".property",
			"unsupported commit property: %s", opts.Property)
	}
	if len(opts.WithAuthor) > 0 {
		args = append(args, opts.WithAuthor)
		query += fmt.Sprintf("\n\t  AND c.author_login = ANY($%d)", len(args))
	}
	if len(opts.WithCommitter) > 0 {
		args = append(args, opts.WithCommitter)
		query += fmt.Sprintf("\n\t  AND c.committer_login = ANY($%d)", len(args))
	}
	query += "\n\tORDER BY c.committed_at"
	return query, args, nil
}
