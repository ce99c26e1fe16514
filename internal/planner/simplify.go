package planner

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Interval is one [From, To) metric window.
type Interval struct {
	From time.Time
	To   time.Time
}

// Request is one caller-submitted triple: metrics × intervals × teams.
type Request struct {
	Metrics   []string
	Intervals []Interval
	Teams     map[int][]int64 // team id -> member user node ids
}

// canonicalRequest is the deduplicated downstream unit: every team in it
// asks for exactly the same metric set over the same intervals.
type canonicalRequest struct {
	intervals []Interval
	metrics   []string // sorted
	teams     []int    // sorted
	members   map[int][]int64
}

// simplify regroups the requests twice: first by intervals tuple, collecting
// the metric set each team asks for, then by sorted metrics tuple, collecting
// the teams that share it. The (interval, metric, team) cell set is preserved
// exactly.
func simplify(reqs []Request) []canonicalRequest {
	type teamMetrics struct {
		intervals []Interval
		byTeam    map[int]map[string]bool
		members   map[int][]int64
	}
	byIntervals := map[string]*teamMetrics{}
	var intervalOrder []string
	for _, req := range reqs {
		ik := intervalsKey(req.Intervals)
		bucket := byIntervals[ik]
		if bucket == nil {
			bucket = &teamMetrics{
				intervals: req.Intervals,
				byTeam:    map[int]map[string]bool{},
				members:   map[int][]int64{},
			}
			byIntervals[ik] = bucket
			intervalOrder = append(intervalOrder, ik)
		}
		for team, members := range req.Teams {
			set := bucket.byTeam[team]
			if set == nil {
				set = map[string]bool{}
				bucket.byTeam[team] = set
			}
			for _, m := range req.Metrics {
				set[m] = true
			}
			bucket.members[team] = members
		}
	}

	var out []canonicalRequest
	for _, ik := range intervalOrder {
		bucket := byIntervals[ik]
		byMetrics := map[string]*canonicalRequest{}
		var metricOrder []string
		for team, set := range bucket.byTeam {
			names := make([]string, 0, len(set))
			for m := range set {
				names = append(names, m)
			}
			sort.Strings(names)
			mk := strings.Join(names, "\x00")
			cr := byMetrics[mk]
			if cr == nil {
				cr = &canonicalRequest{
					intervals: bucket.intervals,
					metrics:   names,
					members:   map[int][]int64{},
				}
				byMetrics[mk] = cr
				metricOrder = append(metricOrder, mk)
			}
			cr.teams = append(cr.teams, team)
			cr.members[team] = bucket.members[team]
		}
		sort.Strings(metricOrder)
		for _, mk := range metricOrder {
			cr := byMetrics[mk]
			sort.Ints(cr.teams)
			out = append(out, *cr)
		}
	}
	return out
}

func intervalsKey(intervals []Interval) string {
	var sb strings.Builder
	for _, iv := range intervals {
		sb.WriteString(strconv.FormatInt(iv.From.UnixNano(), 10))
		sb.WriteByte('-')
		sb.WriteString(strconv.FormatInt(iv.To.UnixNano(), 10))
		sb.WriteByte(';')
	}
	return sb.String()
}

// window returns the envelope of the intervals.
func window(intervals []Interval) (time.Time, time.Time) {
	if len(intervals) == 0 {
		return time.Time{}, time.Time{}
	}
	from, to := intervals[0].From, intervals[0].To
	for _, iv := range intervals[1:] {
		if iv.From.Before(from) {
			from = iv.From
		}
		if iv.To.After(to) {
			to = iv.To
		}
	}
	return from, to
}
