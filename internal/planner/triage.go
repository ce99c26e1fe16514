package planner

import (
	"strings"

	"github.com/shipfacts/shipfacts/internal/errors"
	"github.com/shipfacts/shipfacts/internal/metrics"
)

// families holds the triaged metric names of one canonical request.
type families struct {
	pr      []string
	release []string
	jira    []string
}

// triage routes each metric name to its calculator family. A single unknown
// name rejects the whole request.
func triage(names []string) (families, error) {
	var f families
	var unknown []string
	for _, name := range names {
		switch metrics.FamilyOf(name) {
		case metrics.FamilyPR:
			f.pr = append(f.pr, name)
		case metrics.FamilyRelease:
			f.release = append(f.release, name)
		case metrics.FamilyJIRA:
			f.jira = append(f.jira, name)
		default:
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return families{}, errors.Invalid(".metrics",
			"unsupported metrics: %s", strings.Join(unknown, ", "))
	}
	return f, nil
}
