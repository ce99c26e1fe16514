package checkrun

import (
	"sort"
	"strconv"
	"time"

	"github.com/shipfacts/shipfacts/internal/models"
)

// prInfo is the slice of PR metadata the disambiguation passes need.
type prInfo struct {
	NodeID    int64
	Author    string
	CreatedAt time.Time
	ClosedAt  *time.Time
	Commits   int
}

// prLifetimeSlack extends a PR's lifetime past its close: CI triggered by the
// closing push finishes after the PR does.
const prLifetimeSlack = time.Hour

// computeSuiteStarts sets each row's suite start to the earliest run start of
// its suite.
func computeSuiteStarts(t *Table) {
	starts := map[string]time.Time{}
	for i := 0; i < t.Len(); i++ {
		if cur, ok := starts[t.SuiteID[i]]; !ok || t.StartedAt[i].Before(cur) {
			starts[t.SuiteID[i]] = t.StartedAt[i]
		}
	}
	for i := 0; i < t.Len(); i++ {
		t.SuiteStartedAt[i] = starts[t.SuiteID[i]]
	}
}

// disambiguate resolves runs attributed to several PRs because the commit is
// shared. Pass A drops attributions outside the PR's lifetime; Pass B picks
// one winner by author equality then fewest commits. Every run survives
// exactly once, PR-attributed when any attribution won.
func disambiguate(t *Table, prs map[int64]prInfo, now time.Time) {
	// Pass A: lifetime filter
	for i := 0; i < t.Len(); i++ {
		if t.PRNodeID[i] == 0 {
			continue
		}
		pr, ok := prs[t.PRNodeID[i]]
		if !ok {
			t.PRNodeID[i] = 0
			continue
		}
		closed := now
		if pr.ClosedAt != nil {
			closed = *pr.ClosedAt
		}
		start := t.SuiteStartedAt[i]
		if start.Before(pr.CreatedAt) || start.After(closed.Add(prLifetimeSlack)) {
			t.PRNodeID[i] = 0
		}
	}

	// Pass B: among surviving attributions of the same run, pick one
	byRun := map[string][]int{}
	for i := 0; i < t.Len(); i++ {
		k := runIdentity(t, i)
		byRun[k] = append(byRun[k], i)
	}
	mask := make([]bool, t.Len())
	for _, rows := range byRun {
		var attributed []int
		for _, i := range rows {
			if t.PRNodeID[i] != 0 {
				attributed = append(attributed, i)
			}
		}
		if len(attributed) == 0 {
			// keep a single unattributed representative
			mask[rows[0]] = true
			continue
		}
		winner := pickWinner(t, attributed, prs)
		mask[winner] = true
	}
	t.Keep(mask)
}

// runIdentity names the underlying CI event independently of PR attribution.
// Status contexts have no node id, so the commit, url and start time stand in.
func runIdentity(t *Table, i int) string {
	if t.CheckRunNodeID[i] != 0 {
		return "r:" + strconv.FormatInt(t.CheckRunNodeID[i], 10)
	}
	return "s:" + strconv.FormatInt(t.CommitNodeID[i], 10) + ":" + t.URL[i] +
		":" + strconv.FormatInt(t.StartedAt[i].UnixNano(), 10)
}

// pickWinner applies author equality first, then the fewest-commits argmin
// over candidates pre-sorted by PR created_at ascending so ties break
// deterministically.
func pickWinner(t *Table, candidates []int, prs map[int64]prInfo) int {
	sort.SliceStable(candidates, func(a, b int) bool {
		pa, pb := prs[t.PRNodeID[candidates[a]]], prs[t.PRNodeID[candidates[b]]]
		return pa.CreatedAt.Before(pb.CreatedAt)
	})
	var sameAuthor []int
	for _, i := range candidates {
		if prs[t.PRNodeID[i]].Author == t.AuthorLogin[i] {
			sameAuthor = append(sameAuthor, i)
		}
	}
	if len(sameAuthor) > 0 {
		candidates = sameAuthor
	}
	winner := candidates[0]
	for _, i := range candidates[1:] {
		if prs[t.PRNodeID[i]].Commits < prs[t.PRNodeID[winner]].Commits {
			winner = i
		}
	}
	return winner
}

// mergeStatusContexts pairs commit status events by (suite, url): the
// earliest becomes the start and receives the latest event's finish time and
// status; the secondaries are dropped.
func mergeStatusContexts(t *Table) {
	type key struct {
		suite string
		url   string
	}
	groups := map[key][]int{}
	for i := 0; i < t.Len(); i++ {
		if !t.StatusContext[i] {
			continue
		}
		k := key{t.SuiteID[i], t.URL[i]}
		groups[k] = append(groups[k], i)
	}
	mask := make([]bool, t.Len())
	for i := range mask {
		mask[i] = true
	}
	for _, rows := range groups {
		if len(rows) < 2 {
			continue
		}
		earliest, latest := rows[0], rows[0]
		for _, i := range rows[1:] {
			if t.StartedAt[i].Before(t.StartedAt[earliest]) {
				earliest = i
			}
			if t.StartedAt[i].After(t.StartedAt[latest]) {
				latest = i
			}
		}
		finish := t.StartedAt[latest]
		t.CompletedAt[earliest] = &finish
		t.Status[earliest] = t.Status[latest]
		t.Conclusion[earliest] = t.Conclusion[latest]
		for _, i := range rows {
			if i != earliest {
				mask[i] = false
			}
		}
	}
	t.Keep(mask)
}

// splitReRuns makes repeated runs of the same name within a suite into
// disjoint synthetic suites by appending the duplicate index in start order.
func splitReRuns(t *Table) {
	t.SortByStartedAt()
	type key struct {
		suite string
		name  string
	}
	seen := map[key]int{}
	dupes := make([]int, t.Len())
	for i := 0; i < t.Len(); i++ {
		k := key{t.SuiteID[i], t.Name[i]}
		dupes[i] = seen[k]
		seen[k]++
	}
	for i := 0; i < t.Len(); i++ {
		t.SuiteID[i] = t.SuiteID[i] + "|" + strconv.Itoa(dupes[i])
	}
}

// clampDurations makes completion times sane: a missing or reversed
// completed_at collapses to started_at, and NEUTRAL conclusions never carry a
// completion.
func clampDurations(t *Table) {
	for i := 0; i < t.Len(); i++ {
		if t.Conclusion[i] == models.CheckConclusionNeutral {
			t.CompletedAt[i] = nil
			continue
		}
		if t.CompletedAt[i] == nil || t.CompletedAt[i].Before(t.StartedAt[i]) {
			s := t.StartedAt[i]
			t.CompletedAt[i] = &s
		}
	}
}

// overrideSuiteConclusions rewrites a successful suite's conclusion when any
// of its runs timed out, was cancelled, or failed. Later entries in the
// precedence list win.
func overrideSuiteConclusions(t *Table) {
	precedence := []string{
		models.CheckConclusionTimedOut,
		models.CheckConclusionCancelled,
		models.CheckConclusionFailure,
	}
	override := map[string]string{}
	for _, concl := range precedence {
		for i := 0; i < t.Len(); i++ {
			if t.Conclusion[i] == concl {
				override[t.SuiteID[i]] = concl
			}
		}
	}
	for i := 0; i < t.Len(); i++ {
		if t.SuiteConclusion[i] != models.CheckConclusionSuccess {
			continue
		}
		if concl, ok := override[t.SuiteID[i]]; ok {
			t.SuiteConclusion[i] = concl
		}
	}
}
