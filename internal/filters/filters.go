// Package filters implements the list-view operations of the API: filtered
// pull requests, commits, releases and check runs. Each operation returns
// typed lists; empty repository sets produce empty, well-formed results.
package filters

import (
	"context"
	"sort"
	"time"

	"github.com/shipfacts/shipfacts/internal/metrics"
	"github.com/shipfacts/shipfacts/internal/miners/checkrun"
	"github.com/shipfacts/shipfacts/internal/miners/pr"
	"github.com/shipfacts/shipfacts/internal/miners/release"
	"github.com/shipfacts/shipfacts/internal/models"
)

// BundleSource supplies mined PR bundles; satisfied by *pr.Miner.
type BundleSource interface {
	MineBundles(ctx context.Context, opts pr.Options) ([]*pr.Bundle, error)
}

// ReleaseSource supplies mined releases; satisfied by *release.Miner.
type ReleaseSource interface {
	Mine(ctx context.Context, account int64, repos []string, from, to time.Time) ([]release.Mined, error)
}

// CheckRunSource supplies normalized check-run tables; satisfied by
// *checkrun.Miner.
type CheckRunSource interface {
	Mine(ctx context.Context, opts checkrun.Options) (*checkrun.Table, error)
}

// StageTimings are the per-stage durations of one listed PR, nil when the
// stage never completed.
type StageTimings struct {
	WIP     *time.Duration `json:"wip"`
	Review  *time.Duration `json:"review"`
	Merging *time.Duration `json:"merging"`
	Release *time.Duration `json:"release"`
	Lead    *time.Duration `json:"lead"`
}

// PullRequestItem is one row of the filtered PR list.
type PullRequestItem struct {
	Repository   string            `json:"repository"`
	Number       int               `json:"number"`
	Title        string            `json:"title"`
	Author       string            `json:"author"`
	Participants map[string]string `json:"participants"` // login -> role
	Labels       []string          `json:"labels"`
	Created      time.Time         `json:"created"`
	Stage        string            `json:"stage"` // wip, review, merging, releasing, done
	Timings      StageTimings      `json:"timings"`
}

// PullRequestsOptions scope the filterPullRequests operation.
type PullRequestsOptions struct {
	Account         int64
	DateFrom        time.Time
	DateTo          time.Time
	In              []string // repositories
	With            pr.Participants
	LabelsInclude   []string
	LabelsExclude   []string
	ExcludeInactive bool
}

// PullRequests lists the PRs matching the filter with their lifecycle stage
// and per-stage timings.
func PullRequests(ctx context.Context, miner BundleSource, opts PullRequestsOptions) ([]PullRequestItem, error) {
	if len(opts.In) == 0 {
		return []PullRequestItem{}, nil
	}
	bundles, err := miner.MineBundles(ctx, pr.Options{
		Account:         opts.Account,
		From:            opts.DateFrom,
		To:              opts.DateTo,
		Repositories:    opts.In,
		Participants:    opts.With,
		Labels:          pr.ParseLabelFilter(opts.LabelsInclude, opts.LabelsExclude),
		ExcludeInactive: opts.ExcludeInactive,
	})
	if err != nil {
		return nil, err
	}
	items := make([]PullRequestItem, 0, len(bundles))
	for _, b := range bundles {
		f := b.Facts
		item := PullRequestItem{
			Repository:   f.RepositoryFullName,
			Number:       b.PR.Number,
			Title:        b.PR.Title,
			Author:       f.Author,
			Participants: participants(f),
			Labels:       sortedKeys(f.Labels),
			Created:      f.Created,
			Stage:        stage(f),
			Timings:      timings(f),
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Created.Before(items[j].Created) })
	return items, nil
}

func participants(f *models.PullRequestFacts) map[string]string {
	out := map[string]string{}
	for login := range f.Commenters {
		out[login] = "commenter"
	}
	for login := range f.Reviewers {
		out[login] = "reviewer"
	}
	if f.Merger != "" {
		out[f.Merger] = "merger"
	}
	if f.Author != "" {
		out[f.Author] = "author"
	}
	return out
}

func stage(f *models.PullRequestFacts) string {
	switch {
	case f.Released != nil || (f.Closed != nil && f.Merged == nil):
		return "done"
	case f.Merged != nil:
		return "releasing"
	case f.Approved != nil:
		return "merging"
	case f.FirstReviewRequest != nil:
		return "review"
	default:
		return "wip"
	}
}

func timings(f *models.PullRequestFacts) StageTimings {
	var t StageTimings
	dur := func(from, to *time.Time) *time.Duration {
		if from == nil || to == nil {
			return nil
		}
		d := to.Sub(*from)
		if d < 0 {
			d = 0
		}
		return &d
	}
	began := f.WorkBegan()
	t.WIP = dur(&began, f.FirstReviewRequest)
	if f.Closed != nil {
		end := f.Approved
		if end == nil {
			end = f.LastReview
		}
		t.Review = dur(f.FirstReviewRequest, end)
	}
	t.Merging = dur(f.Approved, f.Closed)
	t.Release = dur(f.Merged, f.Released)
	t.Lead = dur(&began, f.Released)
	return t
}

// ReleaseItem is one row of the filterReleases list.
type ReleaseItem struct {
	Repository  string    `json:"repository"`
	Name        string    `json:"name"`
	Tag         string    `json:"tag"`
	PublishedAt time.Time `json:"published_at"`
	Publisher   string    `json:"publisher"`
	Commits     int       `json:"commits"`
	Additions   int       `json:"additions"`
	Deletions   int       `json:"deletions"`
	PRs         int       `json:"prs"`
	Authors     []string  `json:"commit_authors"`
	AgeSeconds  float64   `json:"age"`
}

// Releases lists the releases published inside the window with their stats.
func Releases(ctx context.Context, miner ReleaseSource, account int64, repos []string, from, to time.Time) ([]ReleaseItem, error) {
	if len(repos) == 0 {
		return []ReleaseItem{}, nil
	}
	mined, err := miner.Mine(ctx, account, repos, from, to)
	if err != nil {
		return nil, err
	}
	items := make([]ReleaseItem, 0, len(mined))
	for _, m := range mined {
		items = append(items, ReleaseItem{
			Repository:  m.Release.RepositoryFullName,
			Name:        m.Release.Name,
			Tag:         m.Release.Tag,
			PublishedAt: m.Release.PublishedAt,
			Publisher:   m.Release.AuthorLogin,
			Commits:     m.Facts.CommitsCount,
			Additions:   m.Facts.Additions,
			Deletions:   m.Facts.Deletions,
			PRs:         len(m.Facts.PRNodeIDs),
			Authors:     m.Facts.CommitAuthors,
			AgeSeconds:  m.Facts.Age.Seconds(),
		})
	}
	return items, nil
}

// CheckRunsOptions scope the filterCheckRuns operation.
type CheckRunsOptions struct {
	TimeFrom      time.Time
	TimeTo        time.Time
	Repositories  []string
	Pushers       []string
	JIRAKeys      []string
	LabelsInclude []string
	LabelsExclude []string
	Quantiles     metrics.Quantiles
}

// CheckRuns returns the timeline boundaries and the per-(repository, name)
// stats of the mined check runs.
func CheckRuns(ctx context.Context, miner CheckRunSource, opts CheckRunsOptions) ([]time.Time, []checkrun.GroupStats, error) {
	if len(opts.Repositories) == 0 {
		return checkrun.Buckets(opts.TimeFrom, opts.TimeTo), []checkrun.GroupStats{}, nil
	}
	table, err := miner.Mine(ctx, checkrun.Options{
		From:         opts.TimeFrom,
		To:           opts.TimeTo,
		Repositories: opts.Repositories,
		Pushers:      opts.Pushers,
		JIRAKeys:     opts.JIRAKeys,
		Labels:       pr.ParseLabelFilter(opts.LabelsInclude, opts.LabelsExclude),
	})
	if err != nil {
		return nil, nil, err
	}
	stats, boundaries := checkrun.Aggregate(table, opts.TimeFrom, opts.TimeTo, opts.Quantiles)
	return boundaries, stats, nil
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
