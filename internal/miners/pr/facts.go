package pr

import (
	"sort"
	"strconv"
	"time"

	"github.com/shipfacts/shipfacts/internal/models"
)

// Bundle gathers everything mined about one PR before the facts are derived.
type Bundle struct {
	PR             models.PullRequest
	Reviews        []models.PRReview
	ReviewRequests []models.PRReviewRequest
	Comments       []models.PRComment
	Commits        []models.PRCommit
	Labels         []models.PRLabel
	ReleasedAt     *time.Time
	ReleaserLogin  string
	ReleaseMatch   models.ReleaseMatch
	JIRAIDs        []string

	Facts *models.PullRequestFacts
}

// DeriveFacts computes the canonical lifecycle timeline of a bundle. Missing
// stages stay nil. The result is validated before it leaves the miner.
func DeriveFacts(b *Bundle) (*models.PullRequestFacts, error) {
	f := &models.PullRequestFacts{
		PRNodeID:           b.PR.NodeID,
		RepositoryFullName: b.PR.RepositoryFullName,
		Created:            b.PR.CreatedAt,
		Merged:             b.PR.MergedAt,
		Closed:             b.PR.ClosedAt,
		Released:           b.ReleasedAt,
		Additions:          b.PR.Additions,
		Deletions:          b.PR.Deletions,
		ChangedFiles:       b.PR.ChangedFiles,
		Author:             b.PR.AuthorLogin,
		Merger:             b.PR.MergedByLogin,
		Releaser:           b.ReleaserLogin,
		Reviewers:          map[string]string{},
		Commenters:         map[string]string{},
		CommitAuthors:      map[string]string{},
		CommitCommitters:   map[string]string{},
		Labels:             map[string]string{},
		JIRAIDs:            b.JIRAIDs,
		ReleaseMatch:       string(b.ReleaseMatch),
	}
	if b.ReleasedAt == nil {
		f.Released = nil
	}

	for _, c := range b.Commits {
		if f.FirstCommit == nil || c.AuthoredAt.Before(*f.FirstCommit) {
			t := c.AuthoredAt
			f.FirstCommit = &t
		}
		if f.LastCommit == nil || c.CommittedAt.After(*f.LastCommit) {
			t := c.CommittedAt
			f.LastCommit = &t
		}
		if c.AuthorLogin != "" {
			f.CommitAuthors[c.AuthorLogin] = ""
		}
		if c.CommitterLogin != "" {
			f.CommitCommitters[c.CommitterLogin] = ""
		}
	}

	for _, r := range b.ReviewRequests {
		if f.Closed != nil && r.RequestedAt.After(*f.Closed) {
			continue
		}
		if f.FirstReviewRequest == nil || r.RequestedAt.Before(*f.FirstReviewRequest) {
			t := r.RequestedAt
			f.FirstReviewRequest = &t
		}
	}

	var firstReview *time.Time
	for _, r := range b.Reviews {
		// reviews submitted after close belong to the next iteration of work
		if f.Closed != nil && r.SubmittedAt.After(*f.Closed) {
			continue
		}
		if f.LastReview == nil || r.SubmittedAt.After(*f.LastReview) {
			t := r.SubmittedAt
			f.LastReview = &t
		}
		if firstReview == nil || r.SubmittedAt.Before(*firstReview) {
			t := r.SubmittedAt
			firstReview = &t
		}
		if r.State == models.ReviewStateApproved {
			if f.Merged == nil || !r.SubmittedAt.After(*f.Merged) {
				if f.Approved == nil || r.SubmittedAt.After(*f.Approved) {
					t := r.SubmittedAt
					f.Approved = &t
				}
			}
		}
		if r.UserLogin != "" && r.UserLogin != f.Author {
			f.Reviewers[r.UserLogin] = strconv.FormatInt(r.UserNodeID, 10)
		}
	}

	for _, c := range b.Comments {
		if c.UserLogin != "" {
			f.Commenters[c.UserLogin] = strconv.FormatInt(c.UserNodeID, 10)
		}
		if f.Closed != nil && c.CreatedAt.After(*f.Closed) {
			continue
		}
		if c.InReview && f.FirstReviewRequest != nil && !c.CreatedAt.Before(*f.FirstReviewRequest) {
			if f.FirstCommentOnFirstReview == nil || c.CreatedAt.Before(*f.FirstCommentOnFirstReview) {
				t := c.CreatedAt
				f.FirstCommentOnFirstReview = &t
			}
		}
	}

	// the first review submission itself counts as the opening comment of the
	// review when it precedes every review-thread comment
	if firstReview != nil && f.FirstReviewRequest != nil && !firstReview.Before(*f.FirstReviewRequest) {
		if f.FirstCommentOnFirstReview == nil || firstReview.Before(*f.FirstCommentOnFirstReview) {
			f.FirstCommentOnFirstReview = firstReview
		}
	}

	if boundary := firstReviewBoundary(f); boundary != nil {
		for _, c := range b.Commits {
			if c.CommittedAt.After(*boundary) {
				continue
			}
			if f.LastCommitBeforeFirstReview == nil || c.CommittedAt.After(*f.LastCommitBeforeFirstReview) {
				t := c.CommittedAt
				f.LastCommitBeforeFirstReview = &t
			}
		}
	}

	for _, l := range b.Labels {
		f.Labels[l.Name] = ""
	}

	f.ActivityDays = activityDays(f, b)

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// firstReviewBoundary is the moment review effectively started: the first
// review comment, else the first review submission.
func firstReviewBoundary(f *models.PullRequestFacts) *time.Time {
	if f.FirstCommentOnFirstReview != nil {
		return f.FirstCommentOnFirstReview
	}
	return f.LastReview
}

// activityDays collects the distinct UTC days touched by any event of the PR.
func activityDays(f *models.PullRequestFacts, b *Bundle) []time.Time {
	days := map[time.Time]struct{}{}
	add := func(t *time.Time) {
		if t != nil {
			days[t.UTC().Truncate(24*time.Hour)] = struct{}{}
		}
	}
	created := f.Created
	add(&created)
	add(f.Merged)
	add(f.Closed)
	add(f.Released)
	for _, c := range b.Commits {
		t := c.CommittedAt
		add(&t)
	}
	for _, r := range b.Reviews {
		t := r.SubmittedAt
		add(&t)
	}
	for _, c := range b.Comments {
		t := c.CreatedAt
		add(&t)
	}
	out := make([]time.Time, 0, len(days))
	for d := range days {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// activeIn reports whether the PR shows any activity day inside the window.
func activeIn(f *models.PullRequestFacts, from, to time.Time) bool {
	for _, d := range f.ActivityDays {
		if !d.Before(from.UTC().Truncate(24*time.Hour)) && d.Before(to) {
			return true
		}
	}
	return false
}
