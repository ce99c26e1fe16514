package metrics

import (
	"time"

	"github.com/shipfacts/shipfacts/internal/models"
)

// PR-family metric names.
const (
	PRWIPTime     = "pr-wip-time"
	PRReviewTime  = "pr-review-time"
	PRMergingTime = "pr-merging-time"
	PRReleaseTime = "pr-release-time"
	PRLeadTime    = "pr-lead-time"
	PRCycleTime   = "pr-cycle-time"
	PRAllCount    = "pr-all-count"
)

func init() {
	registerPR(wipTime{})
	registerPR(reviewTime{})
	registerPR(mergingTime{})
	registerPR(releaseTime{})
	registerPR(leadTime{})
	registerPR(cycleTime{})
	registerPR(allCount{})
}

func inWindow(t *time.Time, from, to time.Time) bool {
	return t != nil && !t.Before(from) && t.Before(to)
}

// wipTime measures how long a PR stayed in progress before review was first
// requested, anchored at work began.
type wipTime struct{}

func (wipTime) Name() string { return PRWIPTime }

func (wipTime) Analyze(facts []*models.PullRequestFacts, from, to time.Time, q Quantiles) Metric {
	var samples []float64
	for _, f := range facts {
		if !inWindow(f.FirstReviewRequest, from, to) {
			continue
		}
		if d := f.FirstReviewRequest.Sub(f.WorkBegan()); d >= 0 {
			samples = append(samples, d.Seconds())
		}
	}
	return summarizeMedian(samples, q)
}

// reviewTime measures the span from the first review request to approval, or
// to the last review when approval never happened. Only closed PRs count:
// an open PR's review may still be running.
type reviewTime struct{}

func (reviewTime) Name() string { return PRReviewTime }

func (reviewTime) Analyze(facts []*models.PullRequestFacts, from, to time.Time, q Quantiles) Metric {
	var samples []float64
	for _, f := range facts {
		if f.Closed == nil || f.FirstReviewRequest == nil {
			continue
		}
		end := f.Approved
		if end == nil {
			end = f.LastReview
		}
		if !inWindow(end, from, to) {
			continue
		}
		if d := end.Sub(*f.FirstReviewRequest); d >= 0 {
			samples = append(samples, d.Seconds())
		}
	}
	return summarizeMedian(samples, q)
}

// mergingTime measures the span from approval to close.
type mergingTime struct{}

func (mergingTime) Name() string { return PRMergingTime }

func (mergingTime) Analyze(facts []*models.PullRequestFacts, from, to time.Time, q Quantiles) Metric {
	var samples []float64
	for _, f := range facts {
		if f.Approved == nil || !inWindow(f.Closed, from, to) {
			continue
		}
		if d := f.Closed.Sub(*f.Approved); d >= 0 {
			samples = append(samples, d.Seconds())
		}
	}
	return summarizeMedian(samples, q)
}

// releaseTime measures the span from merge to release.
type releaseTime struct{}

func (releaseTime) Name() string { return PRReleaseTime }

func (releaseTime) Analyze(facts []*models.PullRequestFacts, from, to time.Time, q Quantiles) Metric {
	var samples []float64
	for _, f := range facts {
		if f.Merged == nil || !inWindow(f.Released, from, to) {
			continue
		}
		if d := f.Released.Sub(*f.Merged); d >= 0 {
			samples = append(samples, d.Seconds())
		}
	}
	return summarizeMedian(samples, q)
}

// leadTime measures the whole journey from work began to release.
type leadTime struct{}

func (leadTime) Name() string { return PRLeadTime }

func (leadTime) Analyze(facts []*models.PullRequestFacts, from, to time.Time, q Quantiles) Metric {
	var samples []float64
	for _, f := range facts {
		if !inWindow(f.Released, from, to) {
			continue
		}
		if d := f.Released.Sub(f.WorkBegan()); d >= 0 {
			samples = append(samples, d.Seconds())
		}
	}
	return summarizeMedian(samples, q)
}

// cycleTime sums the stage durations that exist for each PR reaching a
// terminal state in the window.
type cycleTime struct{}

func (cycleTime) Name() string { return PRCycleTime }

func (cycleTime) Analyze(facts []*models.PullRequestFacts, from, to time.Time, q Quantiles) Metric {
	var samples []float64
	for _, f := range facts {
		terminal := f.Released
		if terminal == nil {
			terminal = f.Closed
		}
		if !inWindow(terminal, from, to) {
			continue
		}
		var total time.Duration
		var any bool
		add := func(d time.Duration) {
			if d >= 0 {
				total += d
				any = true
			}
		}
		if f.FirstReviewRequest != nil {
			add(f.FirstReviewRequest.Sub(f.WorkBegan()))
			end := f.Approved
			if end == nil {
				end = f.LastReview
			}
			if f.Closed != nil && end != nil {
				add(end.Sub(*f.FirstReviewRequest))
			}
		}
		if f.Approved != nil && f.Closed != nil {
			add(f.Closed.Sub(*f.Approved))
		}
		if f.Merged != nil && f.Released != nil {
			add(f.Released.Sub(*f.Merged))
		}
		if any {
			samples = append(samples, total.Seconds())
		}
	}
	return summarizeMedian(samples, q)
}

// allCount tallies the PRs whose lifetime overlaps the window.
type allCount struct{}

func (allCount) Name() string { return PRAllCount }

func (allCount) Analyze(facts []*models.PullRequestFacts, from, to time.Time, _ Quantiles) Metric {
	n := 0
	for _, f := range facts {
		if !f.Created.Before(to) {
			continue
		}
		if f.Closed != nil && f.Closed.Before(from) {
			continue
		}
		n++
	}
	return count(n)
}
