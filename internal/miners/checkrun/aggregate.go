package checkrun

import (
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/shipfacts/shipfacts/internal/metrics"
	"github.com/shipfacts/shipfacts/internal/models"
)

// Buckets builds the timeline boundaries for a window: daily under 35 days,
// weekly under 150 (last bucket clamped to the window end), monthly on the
// first of the month otherwise with the window edges as caps. The result is
// strictly increasing and covers [from, to].
func Buckets(from, to time.Time) []time.Time {
	span := to.Sub(from)
	switch {
	case span <= 35*24*time.Hour:
		return stepped(from, to, 24*time.Hour)
	case span <= 150*24*time.Hour:
		return stepped(from, to, 7*24*time.Hour)
	default:
		return monthly(from, to)
	}
}

func stepped(from, to time.Time, step time.Duration) []time.Time {
	out := []time.Time{from}
	for t := from.Add(step); t.Before(to); t = t.Add(step) {
		out = append(out, t)
	}
	return append(out, to)
}

func monthly(from, to time.Time) []time.Time {
	out := []time.Time{from}
	y, m, _ := from.Date()
	t := time.Date(y, m, 1, 0, 0, 0, 0, from.Location()).AddDate(0, 1, 0)
	for ; t.Before(to); t = t.AddDate(0, 1, 0) {
		if t.After(from) {
			out = append(out, t)
		}
	}
	return append(out, to)
}

// bucketOf places a time into its bucket index, -1 when outside the timeline.
func bucketOf(boundaries []time.Time, t time.Time) int {
	if t.Before(boundaries[0]) || !t.Before(boundaries[len(boundaries)-1]) {
		return -1
	}
	return sort.Search(len(boundaries)-1, func(i int) bool {
		return t.Before(boundaries[i+1])
	})
}

// MaskStats are the aggregates of one (repository, name) group under one row
// mask.
type MaskStats struct {
	Count         int      `json:"count"`
	Successes     int      `json:"successes"`
	Skips         int      `json:"skips"`
	FlakyCount    int      `json:"flaky_count"`
	MeanSeconds   float64  `json:"mean_execution_time"`
	MedianSeconds float64  `json:"median_execution_time"`
	ByBucket      []Bucket `json:"timeline"`
}

// Bucket is the per-timeline-bucket slice of the four counters.
type Bucket struct {
	Count      int `json:"count"`
	Successes  int `json:"successes"`
	Skips      int `json:"skips"`
	FlakyCount int `json:"flaky_count"`
}

// GroupStats summarizes all runs of one (repository, check name).
type GroupStats struct {
	Repository string    `json:"repository"`
	Name       string    `json:"name"`
	Total      MaskStats `json:"total"`
	PRs        MaskStats `json:"prs"`
}

// Aggregate groups the table by (repository, name) and computes the list-view
// stats over the total rows and the PR-attributed subset. Execution times
// outside the quantile bounds are dropped before the mean.
func Aggregate(t *Table, from, to time.Time, q metrics.Quantiles) ([]GroupStats, []time.Time) {
	boundaries := Buckets(from, to)
	type key struct {
		repo string
		name string
	}
	groups := map[key][]int{}
	for i := 0; i < t.Len(); i++ {
		k := key{t.Repository[i], t.Name[i]}
		groups[k] = append(groups[k], i)
	}
	keys := make([]key, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].repo != keys[b].repo {
			return keys[a].repo < keys[b].repo
		}
		return keys[a].name < keys[b].name
	})
	out := make([]GroupStats, 0, len(keys))
	for _, k := range keys {
		rows := groups[k]
		g := GroupStats{Repository: k.repo, Name: k.name}
		g.Total = maskStats(t, rows, boundaries, q, func(int) bool { return true })
		g.PRs = maskStats(t, rows, boundaries, q, func(i int) bool { return t.PRNodeID[i] != 0 })
		out = append(out, g)
	}
	return out, boundaries
}

func maskStats(t *Table, rows []int, boundaries []time.Time, q metrics.Quantiles, include func(int) bool) MaskStats {
	s := MaskStats{ByBucket: make([]Bucket, len(boundaries)-1)}
	var durations []float64
	// per-commit outcome sets for flakiness
	type outcome struct{ ok, failed bool }
	commits := map[int64]*outcome{}
	commitBuckets := map[int64]map[int]bool{}
	for _, i := range rows {
		if !include(i) {
			continue
		}
		s.Count++
		b := bucketOf(boundaries, t.StartedAt[i])
		success := t.Conclusion[i] == models.CheckConclusionSuccess
		skip := t.Conclusion[i] == models.CheckConclusionNeutral
		failed := t.Conclusion[i] == models.CheckConclusionFailure ||
			t.Conclusion[i] == models.CheckConclusionTimedOut
		if success {
			s.Successes++
		}
		if skip {
			s.Skips++
		}
		if b >= 0 {
			s.ByBucket[b].Count++
			if success {
				s.ByBucket[b].Successes++
			}
			if skip {
				s.ByBucket[b].Skips++
			}
		}
		o := commits[t.CommitNodeID[i]]
		if o == nil {
			o = &outcome{}
			commits[t.CommitNodeID[i]] = o
		}
		o.ok = o.ok || success || skip
		o.failed = o.failed || failed
		if b >= 0 {
			set := commitBuckets[t.CommitNodeID[i]]
			if set == nil {
				set = map[int]bool{}
				commitBuckets[t.CommitNodeID[i]] = set
			}
			set[b] = true
		}
		if t.CompletedAt[i] != nil {
			durations = append(durations, t.CompletedAt[i].Sub(t.StartedAt[i]).Seconds())
		}
	}
	for commit, o := range commits {
		if o.ok && o.failed {
			s.FlakyCount++
			for b := range commitBuckets[commit] {
				s.ByBucket[b].FlakyCount++
			}
		}
	}
	if m := metrics.SummarizeExecutionTimes(durations, q); m.Exists {
		s.MeanSeconds = m.Value
	}
	if len(durations) > 0 {
		if med, err := stats.Median(durations); err == nil {
			s.MedianSeconds = med
		}
	}
	return s
}
