package checkrun

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipfacts/shipfacts/internal/metrics"
	"github.com/shipfacts/shipfacts/internal/models"
)

func TestBucketsDaily(t *testing.T) {
	from, to := ts("2023-05-01T00:00:00Z"), ts("2023-05-08T00:00:00Z")
	b := Buckets(from, to)
	require.Len(t, b, 8)
	assert.Equal(t, from, b[0])
	assert.Equal(t, to, b[len(b)-1])
	assert.Equal(t, 24*time.Hour, b[1].Sub(b[0]))
}

func TestBucketsWeeklyClampsLast(t *testing.T) {
	from, to := ts("2023-01-01T00:00:00Z"), ts("2023-03-17T00:00:00Z") // 75 days
	b := Buckets(from, to)
	assert.Equal(t, from, b[0])
	assert.Equal(t, to, b[len(b)-1])
	assert.Equal(t, 7*24*time.Hour, b[1].Sub(b[0]))
	// the final bucket is shorter than a week
	assert.Less(t, b[len(b)-1].Sub(b[len(b)-2]), 7*24*time.Hour)
}

func TestBucketsMonthlyFirstOfMonth(t *testing.T) {
	from, to := ts("2023-01-15T00:00:00Z"), ts("2023-07-20T00:00:00Z")
	b := Buckets(from, to)
	assert.Equal(t, from, b[0])
	assert.Equal(t, to, b[len(b)-1])
	for _, edge := range b[1 : len(b)-1] {
		assert.Equal(t, 1, edge.Day())
	}
	assert.Equal(t, ts("2023-02-01T00:00:00Z"), b[1])
}

func TestBucketsStrictlyIncreasing(t *testing.T) {
	for _, span := range []time.Duration{
		10 * 24 * time.Hour, 100 * 24 * time.Hour, 500 * 24 * time.Hour,
	} {
		from := ts("2022-03-07T12:00:00Z")
		b := Buckets(from, from.Add(span))
		for i := 1; i < len(b); i++ {
			assert.True(t, b[i].After(b[i-1]), "span %v edge %d", span, i)
		}
	}
}

func TestAggregateCountsAndFlaky(t *testing.T) {
	from, to := ts("2023-05-01T00:00:00Z"), ts("2023-05-08T00:00:00Z")
	tbl := &Table{}
	// commit 5 both failed and succeeded for the same check: flaky
	tbl.Append(Row{CheckRunNodeID: 1, Repository: "acme/api", Name: "unit",
		CommitNodeID: 5, PRNodeID: 10, Conclusion: models.CheckConclusionFailure,
		StartedAt: ts("2023-05-02T10:00:00Z"), CompletedAt: tsp("2023-05-02T10:10:00Z")})
	tbl.Append(Row{CheckRunNodeID: 2, Repository: "acme/api", Name: "unit",
		CommitNodeID: 5, PRNodeID: 10, Conclusion: models.CheckConclusionSuccess,
		StartedAt: ts("2023-05-02T11:00:00Z"), CompletedAt: tsp("2023-05-02T11:20:00Z")})
	// unattributed success on another commit
	tbl.Append(Row{CheckRunNodeID: 3, Repository: "acme/api", Name: "unit",
		CommitNodeID: 6, Conclusion: models.CheckConclusionSuccess,
		StartedAt: ts("2023-05-03T10:00:00Z"), CompletedAt: tsp("2023-05-03T10:30:00Z")})

	groups, buckets := Aggregate(tbl, from, to, metrics.DefaultQuantiles)
	require.Len(t, groups, 1)
	g := groups[0]
	assert.Equal(t, "acme/api", g.Repository)
	assert.Equal(t, "unit", g.Name)

	assert.Equal(t, 3, g.Total.Count)
	assert.Equal(t, 2, g.Total.Successes)
	assert.Equal(t, 1, g.Total.FlakyCount)
	assert.Equal(t, 2, g.PRs.Count)
	assert.Equal(t, 1, g.PRs.Successes)
	assert.Equal(t, 1, g.PRs.FlakyCount)

	// durations: 600, 1200, 1800 seconds
	assert.InDelta(t, 1200, g.Total.MeanSeconds, 1e-9)
	assert.InDelta(t, 1200, g.Total.MedianSeconds, 1e-9)

	require.Len(t, g.Total.ByBucket, len(buckets)-1)
	assert.Equal(t, 2, g.Total.ByBucket[1].Count) // 2023-05-02
	assert.Equal(t, 1, g.Total.ByBucket[2].Count) // 2023-05-03
}

func TestFlakyCommitMarksEveryBucket(t *testing.T) {
	from, to := ts("2023-05-01T00:00:00Z"), ts("2023-05-08T00:00:00Z")
	tbl := &Table{}
	// commit 5 failed on day 2 and succeeded on day 4
	tbl.Append(Row{CheckRunNodeID: 1, Repository: "acme/api", Name: "unit",
		CommitNodeID: 5, Conclusion: models.CheckConclusionFailure,
		StartedAt: ts("2023-05-02T10:00:00Z")})
	tbl.Append(Row{CheckRunNodeID: 2, Repository: "acme/api", Name: "unit",
		CommitNodeID: 5, Conclusion: models.CheckConclusionSuccess,
		StartedAt: ts("2023-05-04T10:00:00Z")})

	groups, _ := Aggregate(tbl, from, to, metrics.DefaultQuantiles)
	require.Len(t, groups, 1)
	g := groups[0]
	assert.Equal(t, 1, g.Total.FlakyCount)
	assert.Equal(t, 1, g.Total.ByBucket[1].FlakyCount) // 2023-05-02
	assert.Equal(t, 1, g.Total.ByBucket[3].FlakyCount) // 2023-05-04
	assert.Equal(t, 0, g.Total.ByBucket[2].FlakyCount)
}

func TestAggregateEmptyTable(t *testing.T) {
	groups, buckets := Aggregate(&Table{}, ts("2023-05-01T00:00:00Z"), ts("2023-05-08T00:00:00Z"), metrics.DefaultQuantiles)
	assert.Empty(t, groups)
	assert.Len(t, buckets, 8)
}
