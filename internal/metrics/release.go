package metrics

import (
	"time"

	"github.com/shipfacts/shipfacts/internal/models"
)

// Release-family metric names.
const (
	ReleaseCount    = "release-count"
	ReleasePRs      = "release-prs"
	ReleaseLeadTime = "release-lead-time"
)

func init() {
	registerRelease(releaseCount{})
	registerRelease(releasePRs{})
	registerRelease(releaseLeadTime{})
}

func published(f *models.ReleaseFacts, from, to time.Time) bool {
	return !f.PublishedAt.Before(from) && f.PublishedAt.Before(to)
}

// releaseCount tallies releases published in the window.
type releaseCount struct{}

func (releaseCount) Name() string { return ReleaseCount }

func (releaseCount) Analyze(facts []*models.ReleaseFacts, from, to time.Time, _ Quantiles) Metric {
	n := 0
	for _, f := range facts {
		if published(f, from, to) {
			n++
		}
	}
	return count(n)
}

// releasePRs tallies the PRs shipped by releases in the window.
type releasePRs struct{}

func (releasePRs) Name() string { return ReleasePRs }

func (releasePRs) Analyze(facts []*models.ReleaseFacts, from, to time.Time, _ Quantiles) Metric {
	n := 0
	for _, f := range facts {
		if published(f, from, to) {
			n += len(f.PRNodeIDs)
		}
	}
	return count(n)
}

// releaseLeadTime aggregates the per-PR lead times of every release in the
// window. The median resists the long tail of PRs revived after months.
type releaseLeadTime struct{}

func (releaseLeadTime) Name() string { return ReleaseLeadTime }

func (releaseLeadTime) Analyze(facts []*models.ReleaseFacts, from, to time.Time, q Quantiles) Metric {
	var samples []float64
	for _, f := range facts {
		if !published(f, from, to) {
			continue
		}
		for _, d := range f.PRLeadTimes {
			if d >= 0 {
				samples = append(samples, d.Seconds())
			}
		}
	}
	return summarizeMedian(samples, q)
}
