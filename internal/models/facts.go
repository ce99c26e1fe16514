package models

import (
	"fmt"
	"time"
)

// PullRequestFacts are the canonical lifecycle timestamps and participants
// derived from a PR's event timeline. Missing stages are nil, never zero.
type PullRequestFacts struct {
	PRNodeID           int64  `json:"pr_node_id"`
	RepositoryFullName string `json:"repository_full_name"`

	Created                     time.Time  `json:"created"`
	FirstCommit                 *time.Time `json:"first_commit"`
	LastCommit                  *time.Time `json:"last_commit"`
	LastCommitBeforeFirstReview *time.Time `json:"last_commit_before_first_review"`
	FirstReviewRequest          *time.Time `json:"first_review_request"`
	FirstCommentOnFirstReview   *time.Time `json:"first_comment_on_first_review"`
	Approved                    *time.Time `json:"approved"`
	LastReview                  *time.Time `json:"last_review"`
	Merged                      *time.Time `json:"merged"`
	Closed                      *time.Time `json:"closed"`
	Released                    *time.Time `json:"released"`

	Additions    int `json:"additions"`
	Deletions    int `json:"deletions"`
	ChangedFiles int `json:"changed_files"`

	Author           string            `json:"author"`
	Merger           string            `json:"merger"`
	Releaser         string            `json:"releaser"`
	Reviewers        map[string]string `json:"reviewers"`
	Commenters       map[string]string `json:"commenters"`
	CommitAuthors    map[string]string `json:"commit_authors"`
	CommitCommitters map[string]string `json:"commit_committers"`

	Labels       map[string]string `json:"labels"`
	JIRAIDs      []string          `json:"jira_ids"`
	ReleaseMatch string            `json:"release_match"`
	ActivityDays []time.Time       `json:"activity_days"`
}

// WorkBegan is the anchor for lead-time and wip-time: the earliest of PR
// creation and the first commit.
func (f *PullRequestFacts) WorkBegan() time.Time {
	if f.FirstCommit != nil && f.FirstCommit.Before(f.Created) {
		return *f.FirstCommit
	}
	return f.Created
}

// Done reports whether the PR reached a terminal state: released, or closed
// without a merge.
func (f *PullRequestFacts) Done() bool {
	if f.Released != nil {
		return true
	}
	return f.Closed != nil && f.Merged == nil
}

// Validate enforces the lifecycle ordering invariants. Facts violating them
// are rejected at construction rather than silently persisted.
func (f *PullRequestFacts) Validate() error {
	ordered := func(earlier, later *time.Time, what string) error {
		if earlier != nil && later != nil && later.Before(*earlier) {
			return fmt.Errorf("pull request %d: %s", f.PRNodeID, what)
		}
		return nil
	}
	created := f.Created
	if err := ordered(&created, f.FirstReviewRequest, "first review request precedes creation"); err != nil {
		return err
	}
	if err := ordered(f.FirstReviewRequest, f.FirstCommentOnFirstReview, "first review comment precedes its request"); err != nil {
		return err
	}
	if err := ordered(f.FirstCommentOnFirstReview, f.LastReview, "last review precedes first review comment"); err != nil {
		return err
	}
	if err := ordered(f.Approved, f.Merged, "merge precedes approval"); err != nil {
		return err
	}
	if err := ordered(f.Merged, f.Released, "release precedes merge"); err != nil {
		return err
	}
	if f.Released != nil && f.Merged == nil {
		return fmt.Errorf("pull request %d: released but not merged", f.PRNodeID)
	}
	if err := ordered(f.FirstCommit, f.LastCommit, "last commit precedes first commit"); err != nil {
		return err
	}
	// closed terminates every stage except release
	for _, stage := range []struct {
		at   *time.Time
		what string
	}{
		{&created, "close precedes creation"},
		{f.FirstReviewRequest, "close precedes first review request"},
		{f.FirstCommentOnFirstReview, "close precedes first review comment"},
		{f.LastReview, "close precedes last review"},
		{f.Approved, "close precedes approval"},
		{f.Merged, "close precedes merge"},
	} {
		if err := ordered(stage.at, f.Closed, stage.what); err != nil {
			return err
		}
	}
	return nil
}

// ReleaseFacts summarize a mined release.
type ReleaseFacts struct {
	RepositoryFullName string          `json:"repository_full_name"`
	PublishedAt        time.Time       `json:"published_at"`
	MatchedBy          ReleaseMatch    `json:"matched_by"`
	Age                time.Duration   `json:"age"` // time since the previous release
	Additions          int             `json:"additions"`
	Deletions          int             `json:"deletions"`
	CommitsCount       int             `json:"commits_count"`
	PRNodeIDs          []int64         `json:"pr_node_ids"`
	CommitAuthors      []string        `json:"commit_authors"`
	PRLeadTimes        []time.Duration `json:"pr_lead_times"` // per released PR, from work began
}
