package metrics

import (
	"time"

	"github.com/shipfacts/shipfacts/internal/models"
)

// JIRA-family metric names.
const (
	JIRAResolved        = "jira-resolved"
	JIRALeadTime        = "jira-lead-time"
	JIRAAcknowledgeTime = "jira-acknowledge-time"
)

func init() {
	registerJIRA(jiraResolved{})
	registerJIRA(jiraLeadTime{})
	registerJIRA(jiraAckTime{})
}

// jiraResolved tallies issues resolved in the window.
type jiraResolved struct{}

func (jiraResolved) Name() string { return JIRAResolved }

func (jiraResolved) Analyze(issues []*models.JIRAIssue, from, to time.Time, _ Quantiles) Metric {
	n := 0
	for _, i := range issues {
		if inWindow(i.ResolvedAt, from, to) {
			n++
		}
	}
	return count(n)
}

// jiraLeadTime measures creation to resolution.
type jiraLeadTime struct{}

func (jiraLeadTime) Name() string { return JIRALeadTime }

func (jiraLeadTime) Analyze(issues []*models.JIRAIssue, from, to time.Time, q Quantiles) Metric {
	var samples []float64
	for _, i := range issues {
		if !inWindow(i.ResolvedAt, from, to) {
			continue
		}
		if d := i.ResolvedAt.Sub(i.CreatedAt); d >= 0 {
			samples = append(samples, d.Seconds())
		}
	}
	return summarizeMedian(samples, q)
}

// jiraAckTime measures creation to first acknowledgement (work started or the
// issue moved out of the backlog).
type jiraAckTime struct{}

func (jiraAckTime) Name() string { return JIRAAcknowledgeTime }

func (jiraAckTime) Analyze(issues []*models.JIRAIssue, from, to time.Time, q Quantiles) Metric {
	var samples []float64
	for _, i := range issues {
		if !inWindow(i.AcknowledgedAt, from, to) {
			continue
		}
		if d := i.AcknowledgedAt.Sub(i.CreatedAt); d >= 0 {
			samples = append(samples, d.Seconds())
		}
	}
	return summarizeMedian(samples, q)
}
