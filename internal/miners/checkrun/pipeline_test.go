package checkrun

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

func TestComputeSuiteStarts(t *testing.T) {
	tbl := &Table{}
	tbl.Append(Row{CheckRunNodeID: 1, SuiteID: "S", StartedAt: ts("2023-05-01T10:05:00Z")})
	tbl.Append(Row{CheckRunNodeID: 2, SuiteID: "S", StartedAt: ts("2023-05-01T10:00:00Z")})
	tbl.Append(Row{CheckRunNodeID: 3, SuiteID: "T", StartedAt: ts("2023-05-01T11:00:00Z")})
	computeSuiteStarts(tbl)
	assert.Equal(t, ts("2023-05-01T10:00:00Z"), tbl.SuiteStartedAt[0])
	assert.Equal(t, ts("2023-05-01T10:00:00Z"), tbl.SuiteStartedAt[1])
	assert.Equal(t, ts("2023-05-01T11:00:00Z"), tbl.SuiteStartedAt[2])
}

func TestDisambiguateLifetimeFilter(t *testing.T) {
	prs := map[int64]prInfo{
		10: {NodeID: 10, Author: "alice", CreatedAt: ts("2023-05-01T00:00:00Z"),
			ClosedAt: tsp("2023-05-02T00:00:00Z"), Commits: 3},
	}
	tbl := &Table{}
	// started two days after the PR closed (past the 1h slack)
	tbl.Append(Row{CheckRunNodeID: 1, SuiteID: "S", PRNodeID: 10, AuthorLogin: "alice",
		StartedAt: ts("2023-05-04T00:00:00Z")})
	computeSuiteStarts(tbl)
	disambiguate(tbl, prs, ts("2023-06-01T00:00:00Z"))
	require.Equal(t, 1, tbl.Len())
	assert.Zero(t, tbl.PRNodeID[0])
}

func TestDisambiguateFewestCommitsWins(t *testing.T) {
	prs := map[int64]prInfo{
		10: {NodeID: 10, Author: "alice", CreatedAt: ts("2023-05-01T00:00:00Z"), Commits: 10},
		20: {NodeID: 20, Author: "alice", CreatedAt: ts("2023-05-01T01:00:00Z"), Commits: 2},
	}
	tbl := &Table{}
	// same run attributed to both PRs through a shared commit
	tbl.Append(Row{CheckRunNodeID: 1, SuiteID: "S", PRNodeID: 10, AuthorLogin: "alice",
		CommitNodeID: 5, StartedAt: ts("2023-05-01T02:00:00Z")})
	tbl.Append(Row{CheckRunNodeID: 1, SuiteID: "S", PRNodeID: 20, AuthorLogin: "alice",
		CommitNodeID: 5, StartedAt: ts("2023-05-01T02:00:00Z")})
	computeSuiteStarts(tbl)
	disambiguate(tbl, prs, ts("2023-06-01T00:00:00Z"))
	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, int64(20), tbl.PRNodeID[0])
}

func TestDisambiguateAuthorEqualityBeatsCommitCount(t *testing.T) {
	prs := map[int64]prInfo{
		10: {NodeID: 10, Author: "alice", CreatedAt: ts("2023-05-01T00:00:00Z"), Commits: 10},
		20: {NodeID: 20, Author: "bob", CreatedAt: ts("2023-05-01T01:00:00Z"), Commits: 2},
	}
	tbl := &Table{}
	tbl.Append(Row{CheckRunNodeID: 1, SuiteID: "S", PRNodeID: 10, AuthorLogin: "alice",
		StartedAt: ts("2023-05-01T02:00:00Z")})
	tbl.Append(Row{CheckRunNodeID: 1, SuiteID: "S", PRNodeID: 20, AuthorLogin: "alice",
		StartedAt: ts("2023-05-01T02:00:00Z")})
	computeSuiteStarts(tbl)
	disambiguate(tbl, prs, ts("2023-06-01T00:00:00Z"))
	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, int64(10), tbl.PRNodeID[0])
}

func TestMergeStatusContexts(t *testing.T) {
	tbl := &Table{}
	tbl.Append(Row{SuiteID: "S", URL: "ci/build", StatusContext: true,
		Status: "PENDING", StartedAt: ts("2023-05-01T10:00:00Z")})
	tbl.Append(Row{SuiteID: "S", URL: "ci/build", StatusContext: true,
		Status: models.CheckStatusSuccess, Conclusion: models.CheckConclusionSuccess,
		StartedAt: ts("2023-05-01T10:20:00Z")})
	mergeStatusContexts(tbl)
	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, ts("2023-05-01T10:00:00Z"), tbl.StartedAt[0])
	require.NotNil(t, tbl.CompletedAt[0])
	assert.Equal(t, ts("2023-05-01T10:20:00Z"), *tbl.CompletedAt[0])
	assert.Equal(t, models.CheckConclusionSuccess, tbl.Conclusion[0])
}

func TestSplitReRuns(t *testing.T) {
	tbl := &Table{}
	tbl.Append(Row{CheckRunNodeID: 2, SuiteID: "S", Name: "unit",
		StartedAt: ts("2023-05-01T11:00:00Z")}) // the re-run, listed first
	tbl.Append(Row{CheckRunNodeID: 1, SuiteID: "S", Name: "unit",
		StartedAt: ts("2023-05-01T10:00:00Z")})
	tbl.Append(Row{CheckRunNodeID: 3, SuiteID: "S", Name: "lint",
		StartedAt: ts("2023-05-01T10:00:00Z")})
	splitReRuns(tbl)
	// rows are reordered by start; the earlier "unit" run gets index 0
	require.Equal(t, 3, tbl.Len())
	suiteByRun := map[int64]string{}
	for i := 0; i < tbl.Len(); i++ {
		suiteByRun[tbl.CheckRunNodeID[i]] = tbl.SuiteID[i]
	}
	assert.Equal(t, "S|0", suiteByRun[1])
	assert.Equal(t, "S|1", suiteByRun[2])
	assert.Equal(t, "S|0", suiteByRun[3])
}

func TestClampDurations(t *testing.T) {
	tbl := &Table{}
	tbl.Append(Row{CheckRunNodeID: 1, StartedAt: ts("2023-05-01T10:00:00Z"),
		CompletedAt: tsp("2023-05-01T09:00:00Z")}) // finish precedes start
	tbl.Append(Row{CheckRunNodeID: 2, StartedAt: ts("2023-05-01T10:00:00Z")}) // missing finish
	tbl.Append(Row{CheckRunNodeID: 3, StartedAt: ts("2023-05-01T10:00:00Z"),
		CompletedAt: tsp("2023-05-01T11:00:00Z"), Conclusion: models.CheckConclusionNeutral})
	clampDurations(tbl)
	assert.Equal(t, tbl.StartedAt[0], *tbl.CompletedAt[0])
	assert.Equal(t, tbl.StartedAt[1], *tbl.CompletedAt[1])
	assert.Nil(t, tbl.CompletedAt[2])
}

func TestOverrideSuiteConclusions(t *testing.T) {
	tbl := &Table{}
	tbl.Append(Row{CheckRunNodeID: 1, SuiteID: "S",
		Conclusion: models.CheckConclusionTimedOut, SuiteConclusion: models.CheckConclusionSuccess})
	tbl.Append(Row{CheckRunNodeID: 2, SuiteID: "S",
		Conclusion: models.CheckConclusionFailure, SuiteConclusion: models.CheckConclusionSuccess})
	tbl.Append(Row{CheckRunNodeID: 3, SuiteID: "T",
		Conclusion: models.CheckConclusionSuccess, SuiteConclusion: models.CheckConclusionSuccess})
	overrideSuiteConclusions(tbl)
	// FAILURE is last in the precedence order, so it wins over TIMED_OUT
	assert.Equal(t, models.CheckConclusionFailure, tbl.SuiteConclusion[0])
	assert.Equal(t, models.CheckConclusionFailure, tbl.SuiteConclusion[1])
	assert.Equal(t, models.CheckConclusionSuccess, tbl.SuiteConclusion[2])
}
