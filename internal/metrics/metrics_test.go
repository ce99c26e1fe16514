package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

func TestConfidenceScore(t *testing.T) {
	assert.Equal(t, 0, Metric{}.ConfidenceScore())
	assert.Equal(t, 100, Metric{Exists: true, Value: 42, ConfidenceMin: 42, ConfidenceMax: 42}.ConfidenceScore())
	assert.Equal(t, 90, Metric{Exists: true, Value: 100, ConfidenceMin: 95, ConfidenceMax: 105}.ConfidenceScore())
	// interval wider than the value bottoms out at zero
	assert.Equal(t, 0, Metric{Exists: true, Value: 10, ConfidenceMin: 0, ConfidenceMax: 20}.ConfidenceScore())
}

func TestReviewTimeSinglePR(t *testing.T) {
	facts := []*models.PullRequestFacts{{
		Created:            ts("2023-01-01T00:00:00Z"),
		FirstReviewRequest: tsp("2023-01-02T00:00:00Z"),
		Approved:           tsp("2023-01-02T01:00:00Z"),
		Merged:             tsp("2023-01-02T02:00:00Z"),
		Closed:             tsp("2023-01-02T02:00:00Z"),
	}}
	c, ok := PR(PRReviewTime)
	require.True(t, ok)
	m := c.Analyze(facts, ts("2023-01-01T00:00:00Z"), ts("2023-02-01T00:00:00Z"), DefaultQuantiles)
	require.True(t, m.Exists)
	assert.Equal(t, time.Hour.Seconds(), m.Value)
	assert.Equal(t, 100, m.ConfidenceScore())
}

func TestReviewTimeRequiresClosed(t *testing.T) {
	facts := []*models.PullRequestFacts{{
		Created:            ts("2023-01-01T00:00:00Z"),
		FirstReviewRequest: tsp("2023-01-02T00:00:00Z"),
		LastReview:         tsp("2023-01-02T03:00:00Z"),
	}}
	c, _ := PR(PRReviewTime)
	m := c.Analyze(facts, ts("2023-01-01T00:00:00Z"), ts("2023-02-01T00:00:00Z"), DefaultQuantiles)
	assert.False(t, m.Exists)
}

func TestLeadTimeAnchorsAtFirstCommit(t *testing.T) {
	facts := []*models.PullRequestFacts{{
		Created:     ts("2023-01-03T00:00:00Z"),
		FirstCommit: tsp("2023-01-01T00:00:00Z"),
		Merged:      tsp("2023-01-04T00:00:00Z"),
		Closed:      tsp("2023-01-04T00:00:00Z"),
		Released:    tsp("2023-01-05T00:00:00Z"),
	}}
	c, _ := PR(PRLeadTime)
	m := c.Analyze(facts, ts("2023-01-01T00:00:00Z"), ts("2023-02-01T00:00:00Z"), DefaultQuantiles)
	require.True(t, m.Exists)
	assert.Equal(t, (4 * 24 * time.Hour).Seconds(), m.Value)
}

func TestEmptyWindow(t *testing.T) {
	c, _ := PR(PRReviewTime)
	m := c.Analyze(nil, ts("2020-01-01T00:00:00Z"), ts("2020-01-01T00:00:00Z"), DefaultQuantiles)
	assert.False(t, m.Exists)
	assert.Equal(t, 0, m.ConfidenceScore())
}

func TestAllCountOverlap(t *testing.T) {
	facts := []*models.PullRequestFacts{
		{Created: ts("2023-01-10T00:00:00Z")}, // still open
		{Created: ts("2022-12-01T00:00:00Z"), Closed: tsp("2023-01-05T00:00:00Z")},
		{Created: ts("2022-11-01T00:00:00Z"), Closed: tsp("2022-12-20T00:00:00Z")}, // closed before window
		{Created: ts("2023-03-01T00:00:00Z")},                                      // created after window
	}
	c, _ := PR(PRAllCount)
	m := c.Analyze(facts, ts("2023-01-01T00:00:00Z"), ts("2023-02-01T00:00:00Z"), DefaultQuantiles)
	assert.Equal(t, 2.0, m.Value)
}

func TestFamilyOf(t *testing.T) {
	assert.Equal(t, FamilyPR, FamilyOf(PRWIPTime))
	assert.Equal(t, FamilyRelease, FamilyOf(ReleaseCount))
	assert.Equal(t, FamilyJIRA, FamilyOf(JIRAResolved))
	assert.Equal(t, FamilyUnknown, FamilyOf("pr-typo-time"))
}

func TestReleaseLeadTimeMedian(t *testing.T) {
	facts := []*models.ReleaseFacts{{
		PublishedAt: ts("2023-01-15T00:00:00Z"),
		PRLeadTimes: []time.Duration{time.Hour, 2 * time.Hour, 100 * time.Hour},
	}}
	c, ok := Release(ReleaseLeadTime)
	require.True(t, ok)
	m := c.Analyze(facts, ts("2023-01-01T00:00:00Z"), ts("2023-02-01T00:00:00Z"), DefaultQuantiles)
	require.True(t, m.Exists)
	assert.Equal(t, (2 * time.Hour).Seconds(), m.Value)
}

func TestQuantileClipping(t *testing.T) {
	samples := []float64{1, 2, 3, 4, 1000}
	clipped := clip(samples, Quantiles{0, 0.8})
	assert.NotContains(t, clipped, 1000.0)
	assert.Equal(t, samples, clip(samples, DefaultQuantiles))
}

func TestJIRAAcknowledgeTime(t *testing.T) {
	issues := []*models.JIRAIssue{{
		CreatedAt:      ts("2023-01-01T00:00:00Z"),
		AcknowledgedAt: tsp("2023-01-01T06:00:00Z"),
		ResolvedAt:     tsp("2023-01-03T00:00:00Z"),
	}}
	c, _ := JIRA(JIRAAcknowledgeTime)
	m := c.Analyze(issues, ts("2023-01-01T00:00:00Z"), ts("2023-02-01T00:00:00Z"), DefaultQuantiles)
	require.True(t, m.Exists)
	assert.Equal(t, (6 * time.Hour).Seconds(), m.Value)
}
