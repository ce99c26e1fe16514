package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipfacts/shipfacts/internal/dbgate"
	apierrors "github.com/shipfacts/shipfacts/internal/errors"
	"github.com/shipfacts/shipfacts/internal/metrics"
	"github.com/shipfacts/shipfacts/internal/miners/pr"
	"github.com/shipfacts/shipfacts/internal/miners/release"
	"github.com/shipfacts/shipfacts/internal/models"
	"github.com/shipfacts/shipfacts/internal/prefixer"
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

type fakePRSource struct {
	calls int
	facts []*models.PullRequestFacts
}

func (f *fakePRSource) MineFacts(context.Context, pr.Options) ([]*models.PullRequestFacts, error) {
	f.calls++
	return f.facts, nil
}

type fakeReleaseSource struct {
	calls int
	mined []release.Mined
}

func (f *fakeReleaseSource) Mine(context.Context, int64, []string, time.Time, time.Time) ([]release.Mined, error) {
	f.calls++
	return f.mined, nil
}

type fakeJIRASource struct {
	issues []*models.JIRAIssue
}

func (f *fakeJIRASource) MapMembers(_ context.Context, _ int64, members []int64) ([]string, error) {
	out := make([]string, 0, len(members))
	for range members {
		out = append(out, "jira-user")
	}
	return out, nil
}

func (f *fakeJIRASource) MineIssues(context.Context, int64, []string, time.Time, time.Time) ([]*models.JIRAIssue, error) {
	return f.issues, nil
}

func newTestPlanner(prs *fakePRSource, rels *fakeReleaseSource, jira *fakeJIRASource) *Planner {
	pfx := prefixer.NewStatic(map[int64]string{100: "alice", 101: "bob"}, nil)
	p := New(prs, rels, jira, pfx)
	p.now = func() time.Time { return ts("2024-01-01T00:00:00Z") }
	return p
}

func cells(reqs []Request) map[[3]any]bool {
	out := map[[3]any]bool{}
	for _, r := range reqs {
		for _, iv := range r.Intervals {
			for _, m := range r.Metrics {
				for team := range r.Teams {
					out[[3]any{iv, m, team}] = true
				}
			}
		}
	}
	return out
}

func canonicalCells(crs []canonicalRequest) map[[3]any]bool {
	out := map[[3]any]bool{}
	for _, cr := range crs {
		for _, iv := range cr.intervals {
			for _, m := range cr.metrics {
				for _, team := range cr.teams {
					out[[3]any{iv, m, team}] = true
				}
			}
		}
	}
	return out
}

func TestSimplifyLossless(t *testing.T) {
	iv1 := []Interval{{ts("2023-01-01T00:00:00Z"), ts("2023-02-01T00:00:00Z")}}
	iv2 := []Interval{{ts("2023-01-01T00:00:00Z"), ts("2023-03-01T00:00:00Z")}}
	reqs := []Request{
		{Metrics: []string{metrics.PRLeadTime, metrics.PRAllCount}, Intervals: iv1,
			Teams: map[int][]int64{1: {100}, 2: {101}}},
		{Metrics: []string{metrics.PRAllCount}, Intervals: iv1,
			Teams: map[int][]int64{3: {100, 101}}},
		{Metrics: []string{metrics.PRLeadTime}, Intervals: iv2,
			Teams: map[int][]int64{1: {100}}},
	}
	crs := simplify(reqs)
	assert.Equal(t, cells(reqs), canonicalCells(crs))
	// teams 1 and 2 share a metric set within iv1 and collapse together
	var found bool
	for _, cr := range crs {
		if len(cr.teams) == 2 {
			assert.Equal(t, []int{1, 2}, cr.teams)
			found = true
		}
	}
	assert.True(t, found)
}

func TestPlannerDedupsDownstreamBatches(t *testing.T) {
	prs := &fakePRSource{}
	p := newTestPlanner(prs, &fakeReleaseSource{}, &fakeJIRASource{})
	iv := []Interval{{ts("2023-01-01T00:00:00Z"), ts("2023-02-01T00:00:00Z")}}
	_, err := p.Calculate(context.Background(), Spec{
		Account:   1,
		Quantiles: metrics.DefaultQuantiles,
		Requests: []Request{
			{Metrics: []string{metrics.PRLeadTime, metrics.PRReviewTime}, Intervals: iv,
				Teams: map[int][]int64{5: {100}}},
			{Metrics: []string{metrics.PRReviewTime, metrics.PRLeadTime}, Intervals: iv,
				Teams: map[int][]int64{5: {100}}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, prs.calls)
}

func TestTriageUnknownMetricPointer(t *testing.T) {
	p := newTestPlanner(&fakePRSource{}, &fakeReleaseSource{}, &fakeJIRASource{})
	_, err := p.Calculate(context.Background(), Spec{
		Requests: []Request{{
			Metrics:   []string{"pr-typo-time"},
			Intervals: []Interval{{ts("2023-01-01T00:00:00Z"), ts("2023-02-01T00:00:00Z")}},
			Teams:     map[int][]int64{1: nil},
		}},
	})
	require.Error(t, err)
	var apiErr *apierrors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierrors.KindInvalid, apiErr.Kind)
	assert.Equal(t, ".metrics", apiErr.Pointer)
}

func TestValidateWindowPointers(t *testing.T) {
	p := newTestPlanner(&fakePRSource{}, &fakeReleaseSource{}, &fakeJIRASource{})

	err := p.ValidateWindow(ts("2023-02-01T00:00:00Z"), ts("2023-01-01T00:00:00Z"))
	var apiErr *apierrors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ".validFrom or .expiresAt", apiErr.Pointer)

	err = p.ValidateWindow(ts("2030-01-01T00:00:00Z"), ts("2031-01-01T00:00:00Z"))
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, ".validFrom", apiErr.Pointer)

	assert.NoError(t, p.ValidateWindow(ts("2023-01-01T00:00:00Z"), ts("2023-02-01T00:00:00Z")))
}

func TestEmptyWindowYieldsNonExistentMetric(t *testing.T) {
	p := newTestPlanner(&fakePRSource{}, &fakeReleaseSource{}, &fakeJIRASource{})
	iv := Interval{ts("2020-01-01T00:00:00Z"), ts("2020-01-01T00:00:00Z")}
	result, err := p.Calculate(context.Background(), Spec{
		Account:   1,
		Quantiles: metrics.DefaultQuantiles,
		Requests: []Request{{
			Metrics:   []string{metrics.PRReviewTime},
			Intervals: []Interval{iv},
			Teams:     map[int][]int64{1: nil},
		}},
	})
	require.NoError(t, err)
	m := result[iv][metrics.PRReviewTime][1]
	assert.False(t, m.Exists)
	assert.Equal(t, 0, m.ConfidenceScore())
}

func TestCalculateMixedFamilies(t *testing.T) {
	facts := []*models.PullRequestFacts{{
		Created:            ts("2023-01-02T00:00:00Z"),
		Author:             "alice",
		FirstReviewRequest: tsp("2023-01-03T00:00:00Z"),
		Approved:           tsp("2023-01-03T01:00:00Z"),
		Merged:             tsp("2023-01-03T02:00:00Z"),
		Closed:             tsp("2023-01-03T02:00:00Z"),
	}}
	rels := &fakeReleaseSource{mined: []release.Mined{{
		Facts: models.ReleaseFacts{
			PublishedAt:   ts("2023-01-10T00:00:00Z"),
			CommitAuthors: []string{"alice"},
			PRNodeIDs:     []int64{1, 2},
		},
	}}}
	p := newTestPlanner(&fakePRSource{facts: facts}, rels, &fakeJIRASource{})
	iv := Interval{ts("2023-01-01T00:00:00Z"), ts("2023-02-01T00:00:00Z")}
	result, err := p.Calculate(context.Background(), Spec{
		Account:   1,
		Quantiles: metrics.DefaultQuantiles,
		Requests: []Request{{
			Metrics:   []string{metrics.PRReviewTime, metrics.ReleasePRs},
			Intervals: []Interval{iv},
			Teams:     map[int][]int64{7: {100}},
		}},
	})
	require.NoError(t, err)
	review := result[iv][metrics.PRReviewTime][7]
	require.True(t, review.Exists)
	assert.Equal(t, time.Hour.Seconds(), review.Value)
	prsShipped := result[iv][metrics.ReleasePRs][7]
	require.True(t, prsShipped.Exists)
	assert.Equal(t, 2.0, prsShipped.Value)
}

func TestCurrentValuesDecoratesTeamTree(t *testing.T) {
	ctx := context.Background()
	sdb, err := dbgate.OpenSQL(ctx, "sdb", "sqlite://:memory:")
	require.NoError(t, err)
	defer sdb.Close()
	for _, stmt := range []string{
		`CREATE TABLE teams (id INTEGER PRIMARY KEY, owner_id INTEGER, name TEXT, parent_id INTEGER)`,
		`CREATE TABLE team_members (team_id INTEGER, member_id INTEGER)`,
		`INSERT INTO teams VALUES (1, 1, 'engineering', NULL), (2, 1, 'backend', 1)`,
		`INSERT INTO team_members VALUES (1, 100), (2, 101)`,
	} {
		_, err := sdb.Exec(ctx, stmt)
		require.NoError(t, err)
	}

	facts := []*models.PullRequestFacts{
		{Created: ts("2023-01-02T00:00:00Z"), Author: "alice"},
		{Created: ts("2023-01-03T00:00:00Z"), Author: "bob"},
	}
	p := newTestPlanner(&fakePRSource{facts: facts}, &fakeReleaseSource{}, &fakeJIRASource{})
	values, err := p.CurrentValues(ctx, sdb,
		Spec{Account: 1, Quantiles: metrics.DefaultQuantiles},
		CurrentValuesParams{
			TeamID:    1,
			Metrics:   []string{metrics.PRAllCount},
			ValidFrom: ts("2023-01-01T00:00:00Z"),
			ExpiresAt: ts("2023-02-01T00:00:00Z"),
		})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, metrics.PRAllCount, values[0].Metric)
	root := values[0].Tree
	assert.Equal(t, "engineering", root.Name)
	// the root team flattens to both members, the child only to its own
	assert.Equal(t, 2.0, root.Value.Value)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "backend", root.Children[0].Name)
	assert.Equal(t, 1.0, root.Children[0].Value.Value)
}

func TestCalculateFiltersTeamByAuthor(t *testing.T) {
	facts := []*models.PullRequestFacts{
		{Created: ts("2023-01-02T00:00:00Z"), Author: "alice"},
		{Created: ts("2023-01-03T00:00:00Z"), Author: "mallory"},
	}
	p := newTestPlanner(&fakePRSource{facts: facts}, &fakeReleaseSource{}, &fakeJIRASource{})
	iv := Interval{ts("2023-01-01T00:00:00Z"), ts("2023-02-01T00:00:00Z")}
	result, err := p.Calculate(context.Background(), Spec{
		Account:   1,
		Quantiles: metrics.DefaultQuantiles,
		Requests: []Request{{
			Metrics:   []string{metrics.PRAllCount},
			Intervals: []Interval{iv},
			Teams:     map[int][]int64{1: {100}, 2: nil},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, result[iv][metrics.PRAllCount][1].Value)
	assert.Equal(t, 2.0, result[iv][metrics.PRAllCount][2].Value)
}
