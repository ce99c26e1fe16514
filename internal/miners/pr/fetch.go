package pr

import (
	"context"
	"fmt"
	"time"

	"github.com/shipfacts/shipfacts/internal/dbgate"
	"github.com/shipfacts/shipfacts/internal/models"
)

// fetchPullRequests loads the candidate PRs whose activity window overlaps
// [from, to), minus the blacklist.
func fetchPullRequests(ctx context.Context, mdb *dbgate.Pool, opts Options) ([]models.PullRequest, error) {
	rows, err := mdb.Query(ctx, `
		SELECT node_id, repository_node_id, repository_full_name, number, title,
		       author_node_id, author_login, merged_by_login,
		       additions, deletions, changed_files,
		       created_at, updated_at, merged_at, closed_at, merged
		FROM github.pull_requests
		WHERE repository_full_name = ANY($1)
		  AND created_at < $2
		  AND (closed_at IS NULL OR closed_at >= $3)`,
		opts.Repositories, opts.To, opts.From)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pull requests: %w", err)
	}
	defer rows.Close()
	var prs []models.PullRequest
	for rows.Next() {
		var p models.PullRequest
		if err := rows.Scan(&p.NodeID, &p.RepositoryNodeID, &p.RepositoryFullName,
			&p.Number, &p.Title, &p.AuthorNodeID, &p.AuthorLogin, &p.MergedByLogin,
			&p.Additions, &p.Deletions, &p.ChangedFiles,
			&p.CreatedAt, &p.UpdatedAt, &p.MergedAt, &p.ClosedAt, &p.Merged); err != nil {
			return nil, fmt.Errorf("failed to scan pull request: %w", err)
		}
		if opts.blacklisted(p.NodeID) {
			continue
		}
		prs = append(prs, p)
	}
	return prs, rows.Err()
}

func fetchReviews(ctx context.Context, mdb *dbgate.Pool, ids []int64) (map[int64][]models.PRReview, error) {
	rows, err := mdb.Query(ctx, `
		SELECT pull_request_node_id, user_node_id, user_login, state, submitted_at
		FROM github.pull_request_reviews
		WHERE pull_request_node_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reviews: %w", err)
	}
	defer rows.Close()
	out := map[int64][]models.PRReview{}
	for rows.Next() {
		var r models.PRReview
		if err := rows.Scan(&r.PullRequestNodeID, &r.UserNodeID, &r.UserLogin,
			&r.State, &r.SubmittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review: %w", err)
		}
		out[r.PullRequestNodeID] = append(out[r.PullRequestNodeID], r)
	}
	return out, rows.Err()
}

func fetchReviewRequests(ctx context.Context, mdb *dbgate.Pool, ids []int64) (map[int64][]models.PRReviewRequest, error) {
	rows, err := mdb.Query(ctx, `
		SELECT pull_request_node_id, requested_at
		FROM github.pull_request_review_requests
		WHERE pull_request_node_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch review requests: %w", err)
	}
	defer rows.Close()
	out := map[int64][]models.PRReviewRequest{}
	for rows.Next() {
		var r models.PRReviewRequest
		if err := rows.Scan(&r.PullRequestNodeID, &r.RequestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review request: %w", err)
		}
		out[r.PullRequestNodeID] = append(out[r.PullRequestNodeID], r)
	}
	return out, rows.Err()
}

func fetchComments(ctx context.Context, mdb *dbgate.Pool, ids []int64) (map[int64][]models.PRComment, error) {
	rows, err := mdb.Query(ctx, `
		SELECT pull_request_node_id, user_node_id, user_login, created_at, in_review
		FROM github.pull_request_comments
		WHERE pull_request_node_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch comments: %w", err)
	}
	defer rows.Close()
	out := map[int64][]models.PRComment{}
	for rows.Next() {
		var c models.PRComment
		if err := rows.Scan(&c.PullRequestNodeID, &c.UserNodeID, &c.UserLogin,
			&c.CreatedAt, &c.InReview); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		out[c.PullRequestNodeID] = append(out[c.PullRequestNodeID], c)
	}
	return out, rows.Err()
}

func fetchCommits(ctx context.Context, mdb *dbgate.Pool, ids []int64) (map[int64][]models.PRCommit, error) {
	rows, err := mdb.Query(ctx, `
		SELECT pull_request_node_id, commit_node_id, sha,
		       author_login, committer_login, authored_at, committed_at
		FROM github.pull_request_commits
		WHERE pull_request_node_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch commits: %w", err)
	}
	defer rows.Close()
	out := map[int64][]models.PRCommit{}
	for rows.Next() {
		var c models.PRCommit
		if err := rows.Scan(&c.PullRequestNodeID, &c.CommitNodeID, &c.SHA,
			&c.AuthorLogin, &c.CommitterLogin, &c.AuthoredAt, &c.CommittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan commit: %w", err)
		}
		out[c.PullRequestNodeID] = append(out[c.PullRequestNodeID], c)
	}
	return out, rows.Err()
}

func fetchLabels(ctx context.Context, mdb *dbgate.Pool, ids []int64) (map[int64][]models.PRLabel, error) {
	rows, err := mdb.Query(ctx, `
		SELECT pull_request_node_id, name
		FROM github.pull_request_labels
		WHERE pull_request_node_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch labels: %w", err)
	}
	defer rows.Close()
	out := map[int64][]models.PRLabel{}
	for rows.Next() {
		var l models.PRLabel
		if err := rows.Scan(&l.PullRequestNodeID, &l.Name); err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		out[l.PullRequestNodeID] = append(out[l.PullRequestNodeID], l)
	}
	return out, rows.Err()
}

type releaseLink struct {
	releasedAt time.Time
	releaser   string
	match      models.ReleaseMatch
}

// fetchReleaseLinks resolves which release first shipped each merged PR, as
// attributed by the release miner and persisted in the precomputed store.
func fetchReleaseLinks(ctx context.Context, pdb *dbgate.Pool, ids []int64) (map[int64]releaseLink, error) {
	rows, err := pdb.Query(ctx, `
		SELECT pr_node_id, released_at, releaser_login, release_match
		FROM release_pull_requests
		WHERE pr_node_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch release links: %w", err)
	}
	defer rows.Close()
	out := map[int64]releaseLink{}
	for rows.Next() {
		var id int64
		var link releaseLink
		var match string
		if err := rows.Scan(&id, &link.releasedAt, &link.releaser, &match); err != nil {
			return nil, fmt.Errorf("failed to scan release link: %w", err)
		}
		link.match = models.ReleaseMatch(match)
		// keep the earliest containing release
		if prev, ok := out[id]; !ok || link.releasedAt.Before(prev.releasedAt) {
			out[id] = link
		}
	}
	return out, rows.Err()
}

// fetchJIRAIDs loads the issue keys mapped to each PR.
func fetchJIRAIDs(ctx context.Context, mdb *dbgate.Pool, ids []int64) (map[int64][]string, error) {
	rows, err := mdb.Query(ctx, `
		SELECT pull_request_node_id, issue_key
		FROM jira.pull_request_issues
		WHERE pull_request_node_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JIRA links: %w", err)
	}
	defer rows.Close()
	out := map[int64][]string{}
	for rows.Next() {
		var id int64
		var key string
		if err := rows.Scan(&id, &key); err != nil {
			return nil, fmt.Errorf("failed to scan JIRA link: %w", err)
		}
		out[id] = append(out[id], key)
	}
	return out, rows.Err()
}
