// Package checkrun mines CI check runs and status contexts into a normalized
// table with stable PR attribution, suite grouping and clamped durations.
package checkrun

import (
	"sort"
	"time"
)

// Table is a struct-of-arrays view over check run rows. The pipeline passes
// mutate columns in place and compact rows with keep; all columns always have
// equal length.
type Table struct {
	CheckRunNodeID  []int64
	SuiteID         []string
	Repository      []string
	Name            []string
	Status          []string
	Conclusion      []string
	SuiteConclusion []string
	StartedAt       []time.Time
	SuiteStartedAt  []time.Time
	CompletedAt     []*time.Time
	CommitNodeID    []int64
	PRNodeID        []int64
	AuthorLogin     []string
	URL             []string
	StatusContext   []bool
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.CheckRunNodeID) }

// Append adds one row.
func (t *Table) Append(r Row) {
	t.CheckRunNodeID = append(t.CheckRunNodeID, r.CheckRunNodeID)
	t.SuiteID = append(t.SuiteID, r.SuiteID)
	t.Repository = append(t.Repository, r.Repository)
	t.Name = append(t.Name, r.Name)
	t.Status = append(t.Status, r.Status)
	t.Conclusion = append(t.Conclusion, r.Conclusion)
	t.SuiteConclusion = append(t.SuiteConclusion, r.SuiteConclusion)
	t.StartedAt = append(t.StartedAt, r.StartedAt)
	t.SuiteStartedAt = append(t.SuiteStartedAt, r.SuiteStartedAt)
	t.CompletedAt = append(t.CompletedAt, r.CompletedAt)
	t.CommitNodeID = append(t.CommitNodeID, r.CommitNodeID)
	t.PRNodeID = append(t.PRNodeID, r.PRNodeID)
	t.AuthorLogin = append(t.AuthorLogin, r.AuthorLogin)
	t.URL = append(t.URL, r.URL)
	t.StatusContext = append(t.StatusContext, r.StatusContext)
}

// Row is the AoS view of one table row, for construction and tests.
type Row struct {
	CheckRunNodeID  int64
	SuiteID         string
	Repository      string
	Name            string
	Status          string
	Conclusion      string
	SuiteConclusion string
	StartedAt       time.Time
	SuiteStartedAt  time.Time
	CompletedAt     *time.Time
	CommitNodeID    int64
	PRNodeID        int64
	AuthorLogin     string
	URL             string
	StatusContext   bool
}

// Row materializes row i.
func (t *Table) Row(i int) Row {
	return Row{
		CheckRunNodeID:  t.CheckRunNodeID[i],
		SuiteID:         t.SuiteID[i],
		Repository:      t.Repository[i],
		Name:            t.Name[i],
		Status:          t.Status[i],
		Conclusion:      t.Conclusion[i],
		SuiteConclusion: t.SuiteConclusion[i],
		StartedAt:       t.StartedAt[i],
		SuiteStartedAt:  t.SuiteStartedAt[i],
		CompletedAt:     t.CompletedAt[i],
		CommitNodeID:    t.CommitNodeID[i],
		PRNodeID:        t.PRNodeID[i],
		AuthorLogin:     t.AuthorLogin[i],
		URL:             t.URL[i],
		StatusContext:   t.StatusContext[i],
	}
}

// Keep compacts the table to the rows whose mask entry is true.
func (t *Table) Keep(mask []bool) {
	j := 0
	for i := 0; i < t.Len(); i++ {
		if !mask[i] {
			continue
		}
		t.CheckRunNodeID[j] = t.CheckRunNodeID[i]
		t.SuiteID[j] = t.SuiteID[i]
		t.Repository[j] = t.Repository[i]
		t.Name[j] = t.Name[i]
		t.Status[j] = t.Status[i]
		t.Conclusion[j] = t.Conclusion[i]
		t.SuiteConclusion[j] = t.SuiteConclusion[i]
		t.StartedAt[j] = t.StartedAt[i]
		t.SuiteStartedAt[j] = t.SuiteStartedAt[i]
		t.CompletedAt[j] = t.CompletedAt[i]
		t.CommitNodeID[j] = t.CommitNodeID[i]
		t.PRNodeID[j] = t.PRNodeID[i]
		t.AuthorLogin[j] = t.AuthorLogin[i]
		t.URL[j] = t.URL[i]
		t.StatusContext[j] = t.StatusContext[i]
		j++
	}
	t.truncate(j)
}

func (t *Table) truncate(n int) {
	t.CheckRunNodeID = t.CheckRunNodeID[:n]
	t.SuiteID = t.SuiteID[:n]
	t.Repository = t.Repository[:n]
	t.Name = t.Name[:n]
	t.Status = t.Status[:n]
	t.Conclusion = t.Conclusion[:n]
	t.SuiteConclusion = t.SuiteConclusion[:n]
	t.StartedAt = t.StartedAt[:n]
	t.SuiteStartedAt = t.SuiteStartedAt[:n]
	t.CompletedAt = t.CompletedAt[:n]
	t.CommitNodeID = t.CommitNodeID[:n]
	t.PRNodeID = t.PRNodeID[:n]
	t.AuthorLogin = t.AuthorLogin[:n]
	t.URL = t.URL[:n]
	t.StatusContext = t.StatusContext[:n]
}

// SortByStartedAt orders rows chronologically, a prerequisite of the re-run
// split.
func (t *Table) SortByStartedAt() {
	idx := make([]int, t.Len())
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return t.StartedAt[idx[a]].Before(t.StartedAt[idx[b]])
	})
	t.reorder(idx)
}

func (t *Table) reorder(idx []int) {
	other := &Table{}
	for _, i := range idx {
		other.Append(t.Row(i))
	}
	*t = *other
}
