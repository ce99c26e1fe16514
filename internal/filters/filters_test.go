package filters

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipfacts/shipfacts/internal/metrics"
	"github.com/shipfacts/shipfacts/internal/miners/checkrun"
	"github.com/shipfacts/shipfacts/internal/miners/pr"
	"github.com/shipfacts/shipfacts/internal/miners/release"
	"github.com/shipfacts/shipfacts/internal/models"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func tsp(s string) *time.Time {
	t := ts(s)
	return &t
}

type fakeBundleSource struct {
	opts    pr.Options
	bundles []*pr.Bundle
}

func (f *fakeBundleSource) MineBundles(_ context.Context, opts pr.Options) ([]*pr.Bundle, error) {
	f.opts = opts
	return f.bundles, nil
}

type fakeReleaseSource struct {
	mined []release.Mined
}

func (f *fakeReleaseSource) Mine(context.Context, int64, []string, time.Time, time.Time) ([]release.Mined, error) {
	return f.mined, nil
}

type fakeCheckRunSource struct {
	calls int
	opts  checkrun.Options
	table *checkrun.Table
}

func (f *fakeCheckRunSource) Mine(_ context.Context, opts checkrun.Options) (*checkrun.Table, error) {
	f.calls++
	f.opts = opts
	return f.table, nil
}

func TestPullRequestsEmptyRepositories(t *testing.T) {
	items, err := PullRequests(context.Background(), &fakeBundleSource{}, PullRequestsOptions{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NotNil(t, items)
}

func TestPullRequestsStagesAndTimings(t *testing.T) {
	released := &pr.Bundle{
		PR: models.PullRequest{Number: 7, Title: "fix flaky retries"},
		Facts: &models.PullRequestFacts{
			RepositoryFullName: "acme/api",
			Created:            ts("2023-01-01T00:00:00Z"),
			Author:             "alice",
			FirstReviewRequest: tsp("2023-01-01T04:00:00Z"),
			Approved:           tsp("2023-01-01T06:00:00Z"),
			LastReview:         tsp("2023-01-01T06:00:00Z"),
			Merged:             tsp("2023-01-01T07:00:00Z"),
			Closed:             tsp("2023-01-01T07:00:00Z"),
			Released:           tsp("2023-01-02T07:00:00Z"),
			Reviewers:          map[string]string{"bob": ""},
			Labels:             map[string]string{"bug": ""},
		},
	}
	inReview := &pr.Bundle{
		PR: models.PullRequest{Number: 8, Title: "add pagination"},
		Facts: &models.PullRequestFacts{
			RepositoryFullName: "acme/api",
			Created:            ts("2023-01-05T00:00:00Z"),
			Author:             "bob",
			FirstReviewRequest: tsp("2023-01-05T01:00:00Z"),
		},
	}
	src := &fakeBundleSource{bundles: []*pr.Bundle{inReview, released}}
	items, err := PullRequests(context.Background(), src, PullRequestsOptions{
		Account:       1,
		DateFrom:      ts("2023-01-01T00:00:00Z"),
		DateTo:        ts("2023-02-01T00:00:00Z"),
		In:            []string{"acme/api"},
		LabelsInclude: []string{"bug"},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)

	// sorted by creation time
	done := items[0]
	assert.Equal(t, 7, done.Number)
	assert.Equal(t, "done", done.Stage)
	assert.Equal(t, []string{"bug"}, done.Labels)
	assert.Equal(t, "reviewer", done.Participants["bob"])
	assert.Equal(t, "author", done.Participants["alice"])
	require.NotNil(t, done.Timings.WIP)
	assert.Equal(t, 4*time.Hour, *done.Timings.WIP)
	require.NotNil(t, done.Timings.Review)
	assert.Equal(t, 2*time.Hour, *done.Timings.Review)
	require.NotNil(t, done.Timings.Merging)
	assert.Equal(t, time.Hour, *done.Timings.Merging)
	require.NotNil(t, done.Timings.Release)
	assert.Equal(t, 24*time.Hour, *done.Timings.Release)
	require.NotNil(t, done.Timings.Lead)
	assert.Equal(t, 31*time.Hour, *done.Timings.Lead)

	open := items[1]
	assert.Equal(t, "review", open.Stage)
	assert.Nil(t, open.Timings.Review)
	assert.Nil(t, open.Timings.Lead)

	// the label filter reached the miner options
	assert.Equal(t, [][]string{{"bug"}}, src.opts.Labels.Include)
}

func TestReleasesListsStats(t *testing.T) {
	src := &fakeReleaseSource{mined: []release.Mined{{
		Release: models.Release{
			RepositoryFullName: "acme/api",
			Name:               "v1.2.0",
			Tag:                "v1.2.0",
			PublishedAt:        ts("2023-03-01T00:00:00Z"),
			AuthorLogin:        "alice",
		},
		Facts: models.ReleaseFacts{
			CommitsCount:  12,
			Additions:     300,
			Deletions:     40,
			PRNodeIDs:     []int64{1, 2, 3},
			CommitAuthors: []string{"alice", "bob"},
			Age:           48 * time.Hour,
		},
	}}}
	items, err := Releases(context.Background(), src, 1, []string{"acme/api"},
		ts("2023-02-01T00:00:00Z"), ts("2023-04-01T00:00:00Z"))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "v1.2.0", items[0].Tag)
	assert.Equal(t, 3, items[0].PRs)
	assert.Equal(t, 12, items[0].Commits)
	assert.Equal(t, (48 * time.Hour).Seconds(), items[0].AgeSeconds)

	empty, err := Releases(context.Background(), src, 1, nil,
		ts("2023-02-01T00:00:00Z"), ts("2023-04-01T00:00:00Z"))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCheckRunsEmptyRepositoriesSkipsMining(t *testing.T) {
	src := &fakeCheckRunSource{}
	boundaries, stats, err := CheckRuns(context.Background(), src, CheckRunsOptions{
		TimeFrom:  ts("2023-01-01T00:00:00Z"),
		TimeTo:    ts("2023-01-08T00:00:00Z"),
		Quantiles: metrics.DefaultQuantiles,
	})
	require.NoError(t, err)
	assert.Empty(t, stats)
	assert.NotNil(t, stats)
	assert.NotEmpty(t, boundaries)
	assert.Equal(t, 0, src.calls)
}

func TestCheckRunsAggregates(t *testing.T) {
	table := &checkrun.Table{}
	table.Append(checkrun.Row{
		SuiteID:     "S1",
		Repository:  "acme/api",
		Name:        "unit",
		Status:      models.CheckStatusCompleted,
		Conclusion:  models.CheckConclusionSuccess,
		StartedAt:   ts("2023-01-02T00:00:00Z"),
		CompletedAt: tsp("2023-01-02T00:10:00Z"),
		PRNodeID:    1,
	})
	table.Append(checkrun.Row{
		SuiteID:     "S2",
		Repository:  "acme/api",
		Name:        "unit",
		Status:      models.CheckStatusCompleted,
		Conclusion:  models.CheckConclusionFailure,
		StartedAt:   ts("2023-01-03T00:00:00Z"),
		CompletedAt: tsp("2023-01-03T00:10:00Z"),
	})
	src := &fakeCheckRunSource{table: table}
	boundaries, stats, err := CheckRuns(context.Background(), src, CheckRunsOptions{
		TimeFrom:      ts("2023-01-01T00:00:00Z"),
		TimeTo:        ts("2023-01-08T00:00:00Z"),
		Repositories:  []string{"acme/api"},
		JIRAKeys:      []string{"DEV-101"},
		LabelsInclude: []string{"bug"},
		LabelsExclude: []string{"wontfix"},
		Quantiles:     metrics.DefaultQuantiles,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, boundaries)
	require.Len(t, stats, 1)
	assert.Equal(t, "unit", stats[0].Name)
	assert.Equal(t, 2, stats[0].Total.Count)
	assert.Equal(t, 1, stats[0].Total.Successes)
	assert.Equal(t, 1, stats[0].PRs.Count)

	// the PR-scoped filters reached the miner options
	assert.Equal(t, []string{"DEV-101"}, src.opts.JIRAKeys)
	assert.Equal(t, [][]string{{"bug"}}, src.opts.Labels.Include)
	assert.Equal(t, []string{"wontfix"}, src.opts.Labels.Exclude)
}
