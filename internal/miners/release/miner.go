package release

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shipfacts/shipfacts/internal/dbgate"
	"github.com/shipfacts/shipfacts/internal/errors"
	"github.com/shipfacts/shipfacts/internal/models"
	"github.com/shipfacts/shipfacts/internal/prefixer"
)

// Miner resolves releases and attributes merged PRs to them.
type Miner struct {
	mdb      *dbgate.Pool
	pdb      *dbgate.Pool
	rdb      *dbgate.SQLStore
	settings *prefixer.ReleaseSettings
	logger   *slog.Logger
}

// NewMiner wires the release miner. rdb supplies the event-pushed releases.
func NewMiner(mdb, pdb *dbgate.Pool, rdb *dbgate.SQLStore, settings *prefixer.ReleaseSettings) *Miner {
	return &Miner{
		mdb:      mdb,
		pdb:      pdb,
		rdb:      rdb,
		settings: settings,
		logger:   slog.Default().With("component", "release-miner"),
	}
}

// Mined pairs a resolved release with its derived facts.
type Mined struct {
	Release models.Release
	Facts   models.ReleaseFacts
}

// Mine resolves the releases of each repository published inside [from, to),
// walks the commit ancestry to attribute merged PRs, persists the
// attribution, and returns (release, facts) pairs ordered by publication.
// Hidden releases are resolved but excluded from the result.
func (m *Miner) Mine(ctx context.Context, account int64, repos []string, from, to time.Time) ([]Mined, error) {
	var out []Mined
	for _, repo := range repos {
		mined, err := m.mineRepository(ctx, account, repo, from, to)
		if err != nil {
			return nil, err
		}
		out = append(out, mined...)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Release.PublishedAt.Before(out[j].Release.PublishedAt)
	})
	return out, nil
}

func (m *Miner) mineRepository(ctx context.Context, account int64, repo string, from, to time.Time) ([]Mined, error) {
	setting := m.settings.For(repo)
	releases, err := m.resolveReleases(ctx, repo, setting, from, to)
	if err != nil {
		return nil, err
	}
	if len(releases) == 0 {
		return nil, nil
	}
	sort.Slice(releases, func(i, j int) bool {
		return releases[i].PublishedAt.Before(releases[j].PublishedAt)
	})

	dag, err := LoadDAG(ctx, m.pdb, repo)
	if err != nil {
		return nil, errors.Unavailable(err, "commit history load failed for %s", repo)
	}
	commits, err := m.fetchCommits(ctx, repo)
	if err != nil {
		return nil, err
	}
	dag.Extend(commits)
	if err := SaveDAG(ctx, m.pdb, dag); err != nil {
		return nil, errors.Unavailable(err, "commit history save failed for %s", repo)
	}
	commitsBySHA := make(map[string]models.Commit, len(commits))
	for _, c := range commits {
		commitsBySHA[c.SHA] = c
	}
	mergedPRs, err := m.fetchMergedPRs(ctx, repo)
	if err != nil {
		return nil, err
	}

	hidden, err := m.hiddenReleases(ctx, repo)
	if err != nil {
		return nil, err
	}

	// walk releases oldest first; each owns the commits no earlier release
	// reached
	owned := map[string]bool{}
	var out []Mined
	var prevPublished time.Time
	for i := range releases {
		rel := &releases[i]
		newCommits := dag.Ancestry(rel.CommitSHA, owned)
		for _, sha := range newCommits {
			owned[sha] = true
		}
		facts := models.ReleaseFacts{
			RepositoryFullName: repo,
			PublishedAt:        rel.PublishedAt,
			MatchedBy:          rel.MatchedBy,
			CommitsCount:       len(newCommits),
		}
		if !prevPublished.IsZero() {
			facts.Age = rel.PublishedAt.Sub(prevPublished)
		}
		prevPublished = rel.PublishedAt

		authors := map[string]bool{}
		for _, sha := range newCommits {
			if c, ok := commitsBySHA[sha]; ok && c.AuthorLogin != "" {
				authors[c.AuthorLogin] = true
			}
			if pr, ok := mergedPRs[sha]; ok {
				rel.PRNodeIDs = append(rel.PRNodeIDs, pr.NodeID)
				facts.PRNodeIDs = append(facts.PRNodeIDs, pr.NodeID)
				facts.Additions += pr.Additions
				facts.Deletions += pr.Deletions
				facts.PRLeadTimes = append(facts.PRLeadTimes, rel.PublishedAt.Sub(pr.CreatedAt))
			}
		}
		for a := range authors {
			facts.CommitAuthors = append(facts.CommitAuthors, a)
		}
		sort.Strings(facts.CommitAuthors)
		rel.CommitAuthors = facts.CommitAuthors

		if err := m.saveAttribution(ctx, account, rel); err != nil {
			return nil, err
		}
		if hidden[hiddenKey(rel)] {
			rel.Hidden = true
			continue
		}
		out = append(out, Mined{Release: *rel, Facts: facts})
	}
	return out, nil
}

// resolveReleases gathers the release candidates a repository's rule accepts.
func (m *Miner) resolveReleases(ctx context.Context, repo string, setting models.ReleaseMatchSetting, from, to time.Time) ([]models.Release, error) {
	var out []models.Release
	match := setting.Match

	if match == models.ReleaseMatchEvent {
		return m.fetchEventReleases(ctx, repo, from, to)
	}

	if match == models.ReleaseMatchTag || match == models.ReleaseMatchTagOrBranch {
		tags, err := m.fetchTagReleases(ctx, repo, from, to)
		if err != nil {
			return nil, err
		}
		for _, r := range tags {
			ok, err := MatchTag(setting, r.Tag)
			if err != nil {
				return nil, errors.Invalid(".release_settings", "%s", err)
			}
			if ok {
				r.MatchedBy = models.ReleaseMatchTag
				out = append(out, r)
			}
		}
		// tag-or-branch prefers tags whenever the repository has any
		if match == models.ReleaseMatchTag || len(out) > 0 {
			return out, nil
		}
	}

	branches, err := m.fetchBranchReleases(ctx, repo, setting, from, to)
	if err != nil {
		return nil, err
	}
	return append(out, branches...), nil
}

func (m *Miner) fetchTagReleases(ctx context.Context, repo string, from, to time.Time) ([]models.Release, error) {
	rows, err := m.mdb.Query(ctx, `
		SELECT node_id, name, tag, commit_sha, published_at, url, author_login
		FROM github.releases
		WHERE repository_full_name = $1 AND published_at >= $2 AND published_at < $3`,
		repo, from, to)
	if err != nil {
		return nil, errors.Unavailable(err, "tag release fetch failed for %s", repo)
	}
	defer rows.Close()
	var out []models.Release
	for rows.Next() {
		r := models.Release{RepositoryFullName: repo}
		if err := rows.Scan(&r.NodeID, &r.Name, &r.Tag, &r.CommitSHA,
			&r.PublishedAt, &r.URL, &r.AuthorLogin); err != nil {
			return nil, fmt.Errorf("failed to scan tag release: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// fetchBranchReleases treats every merge commit on a matched branch as a
// release of its own.
func (m *Miner) fetchBranchReleases(ctx context.Context, repo string, setting models.ReleaseMatchSetting, from, to time.Time) ([]models.Release, error) {
	defaultBranch, err := m.fetchDefaultBranch(ctx, repo)
	if err != nil {
		return nil, err
	}
	rows, err := m.mdb.Query(ctx, `
		SELECT c.node_id, c.sha, c.committed_at, c.committer_login, b.name
		FROM github.branch_commits b
		JOIN github.commits c ON c.node_id = b.commit_node_id
		WHERE c.repository_full_name = $1
		  AND c.committed_at >= $2 AND c.committed_at < $3
		  AND array_length(c.parent_shas, 1) > 1`,
		repo, from, to)
	if err != nil {
		return nil, errors.Unavailable(err, "branch release fetch failed for %s", repo)
	}
	defer rows.Close()
	var out []models.Release
	for rows.Next() {
		var r models.Release
		var branch string
		r.RepositoryFullName = repo
		if err := rows.Scan(&r.NodeID, &r.CommitSHA, &r.PublishedAt, &r.AuthorLogin, &branch); err != nil {
			return nil, fmt.Errorf("failed to scan branch release: %w", err)
		}
		ok, err := MatchBranch(setting, branch, defaultBranch)
		if err != nil {
			return nil, errors.Invalid(".release_settings", "%s", err)
		}
		if !ok {
			continue
		}
		r.Name = fmt.Sprintf("%s@%s", branch, shortSHA(r.CommitSHA))
		r.MatchedBy = models.ReleaseMatchBranch
		out = append(out, r)
	}
	return out, rows.Err()
}

// fetchEventReleases loads releases pushed through the events API.
func (m *Miner) fetchEventReleases(ctx context.Context, repo string, from, to time.Time) ([]models.Release, error) {
	var rows []struct {
		Name        string    `db:"name"`
		CommitSHA   string    `db:"commit_sha"`
		PublishedAt time.Time `db:"published_at"`
		URL         string    `db:"url"`
		Author      string    `db:"author_login"`
	}
	if err := m.rdb.Select(ctx, &rows, `
		SELECT name, commit_sha, published_at, url, author_login
		FROM release_notifications
		WHERE repository_full_name = ? AND published_at >= ? AND published_at < ?`,
		repo, from, to); err != nil {
		return nil, errors.Unavailable(err, "event release fetch failed for %s", repo)
	}
	out := make([]models.Release, 0, len(rows))
	for _, row := range rows {
		out = append(out, models.Release{
			RepositoryFullName: repo,
			Name:               row.Name,
			CommitSHA:          row.CommitSHA,
			PublishedAt:        row.PublishedAt,
			URL:                row.URL,
			AuthorLogin:        row.Author,
			MatchedBy:          models.ReleaseMatchEvent,
		})
	}
	return out, nil
}

func (m *Miner) fetchDefaultBranch(ctx context.Context, repo string) (string, error) {
	var branch string
	err := m.mdb.QueryRow(ctx,
		`SELECT default_branch FROM github.repositories WHERE full_name = $1`,
		[]any{&branch}, repo)
	if err != nil {
		return "", errors.Unavailable(err, "default branch fetch failed for %s", repo)
	}
	return branch, nil
}

func (m *Miner) fetchCommits(ctx context.Context, repo string) ([]models.Commit, error) {
	rows, err := m.mdb.Query(ctx, `
		SELECT node_id, sha, parent_shas, author_login, committer_login, committed_at
		FROM github.commits WHERE repository_full_name = $1`, repo)
	if err != nil {
		return nil, errors.Unavailable(err, "commit fetch failed for %s", repo)
	}
	defer rows.Close()
	var out []models.Commit
	for rows.Next() {
		c := models.Commit{RepositoryFullName: repo}
		if err := rows.Scan(&c.NodeID, &c.SHA, &c.ParentSHAs,
			&c.AuthorLogin, &c.CommitterLogin, &c.CommittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan commit: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type mergedPR struct {
	NodeID    int64
	Additions int
	Deletions int
	CreatedAt time.Time
}

// fetchMergedPRs maps merge commit shas to the PRs they merged.
func (m *Miner) fetchMergedPRs(ctx context.Context, repo string) (map[string]mergedPR, error) {
	rows, err := m.mdb.Query(ctx, `
		SELECT node_id, merge_commit_sha, additions, deletions, created_at
		FROM github.pull_requests
		WHERE repository_full_name = $1 AND merged AND merge_commit_sha IS NOT NULL`,
		repo)
	if err != nil {
		return nil, errors.Unavailable(err, "merged PR fetch failed for %s", repo)
	}
	defer rows.Close()
	out := map[string]mergedPR{}
	for rows.Next() {
		var pr mergedPR
		var sha string
		if err := rows.Scan(&pr.NodeID, &sha, &pr.Additions, &pr.Deletions, &pr.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan merged PR: %w", err)
		}
		out[sha] = pr
	}
	return out, rows.Err()
}

// saveAttribution persists which release first shipped each PR; the PR miner
// reads these rows back when deriving facts.
func (m *Miner) saveAttribution(ctx context.Context, account int64, rel *models.Release) error {
	for _, prID := range rel.PRNodeIDs {
		if _, err := m.pdb.Exec(ctx, `
			INSERT INTO release_pull_requests
				(account_id, pr_node_id, release_node_id, released_at, releaser_login, release_match)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (pr_node_id, release_match) DO NOTHING`,
			account, prID, rel.NodeID, rel.PublishedAt, rel.AuthorLogin, string(rel.MatchedBy)); err != nil {
			return fmt.Errorf("failed to save release attribution: %w", err)
		}
	}
	return nil
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
