package metrics

import (
	"fmt"
	"sort"
	"time"

	"github.com/shipfacts/shipfacts/internal/models"
)

// PRCalculator computes one metric over PR facts scoped to a time window.
type PRCalculator interface {
	Name() string
	Analyze(facts []*models.PullRequestFacts, from, to time.Time, q Quantiles) Metric
}

// ReleaseCalculator computes one metric over mined releases.
type ReleaseCalculator interface {
	Name() string
	Analyze(facts []*models.ReleaseFacts, from, to time.Time, q Quantiles) Metric
}

// JIRACalculator computes one metric over JIRA issues.
type JIRACalculator interface {
	Name() string
	Analyze(issues []*models.JIRAIssue, from, to time.Time, q Quantiles) Metric
}

var (
	prCalculators      = map[string]PRCalculator{}
	releaseCalculators = map[string]ReleaseCalculator{}
	jiraCalculators    = map[string]JIRACalculator{}
)

func registerPR(c PRCalculator) {
	if _, dup := prCalculators[c.Name()]; dup {
		panic(fmt.Sprintf("duplicate PR calculator: %s", c.Name()))
	}
	prCalculators[c.Name()] = c
}

func registerRelease(c ReleaseCalculator) {
	if _, dup := releaseCalculators[c.Name()]; dup {
		panic(fmt.Sprintf("duplicate release calculator: %s", c.Name()))
	}
	releaseCalculators[c.Name()] = c
}

func registerJIRA(c JIRACalculator) {
	if _, dup := jiraCalculators[c.Name()]; dup {
		panic(fmt.Sprintf("duplicate JIRA calculator: %s", c.Name()))
	}
	jiraCalculators[c.Name()] = c
}

// PR returns the PR-family calculator registered under name.
func PR(name string) (PRCalculator, bool) {
	c, ok := prCalculators[name]
	return c, ok
}

// Release returns the release-family calculator registered under name.
func Release(name string) (ReleaseCalculator, bool) {
	c, ok := releaseCalculators[name]
	return c, ok
}

// JIRA returns the JIRA-family calculator registered under name.
func JIRA(name string) (JIRACalculator, bool) {
	c, ok := jiraCalculators[name]
	return c, ok
}

// Family is the calculator family a metric name belongs to.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyPR
	FamilyRelease
	FamilyJIRA
)

// FamilyOf looks a metric name up across the three registries.
func FamilyOf(name string) Family {
	if _, ok := prCalculators[name]; ok {
		return FamilyPR
	}
	if _, ok := releaseCalculators[name]; ok {
		return FamilyRelease
	}
	if _, ok := jiraCalculators[name]; ok {
		return FamilyJIRA
	}
	return FamilyUnknown
}

// Known lists every registered metric name, sorted.
func Known() []string {
	names := make([]string, 0, len(prCalculators)+len(releaseCalculators)+len(jiraCalculators))
	for n := range prCalculators {
		names = append(names, n)
	}
	for n := range releaseCalculators {
		names = append(names, n)
	}
	for n := range jiraCalculators {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
