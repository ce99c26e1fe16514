// Package planner deduplicates metric requests, triages them into calculator
// families, dispatches one mining batch per family, and reshapes the raw
// result grids into (interval, metric, team) cells.
package planner

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shipfacts/shipfacts/internal/errors"
	"github.com/shipfacts/shipfacts/internal/metrics"
	"github.com/shipfacts/shipfacts/internal/miners/pr"
	"github.com/shipfacts/shipfacts/internal/miners/release"
	"github.com/shipfacts/shipfacts/internal/models"
	"github.com/shipfacts/shipfacts/internal/prefixer"
)

// PRFactsSource supplies mined PR facts; satisfied by *pr.Miner.
type PRFactsSource interface {
	MineFacts(ctx context.Context, opts pr.Options) ([]*models.PullRequestFacts, error)
}

// ReleaseSource supplies mined releases; satisfied by *release.Miner.
type ReleaseSource interface {
	Mine(ctx context.Context, account int64, repos []string, from, to time.Time) ([]release.Mined, error)
}

// JIRASource supplies mined issues; satisfied by *jira.Miner.
type JIRASource interface {
	MapMembers(ctx context.Context, account int64, members []int64) ([]string, error)
	MineIssues(ctx context.Context, account int64, assignees []string, from, to time.Time) ([]*models.JIRAIssue, error)
}

// Planner computes metric values for batched requests.
type Planner struct {
	prs      PRFactsSource
	releases ReleaseSource
	jira     JIRASource
	prefixer *prefixer.Prefixer
	logger   *slog.Logger
	now      func() time.Time
}

// New wires a planner.
func New(prs PRFactsSource, releases ReleaseSource, jira JIRASource, pfx *prefixer.Prefixer) *Planner {
	return &Planner{
		prs:      prs,
		releases: releases,
		jira:     jira,
		prefixer: pfx,
		logger:   slog.Default().With("component", "planner"),
		now:      time.Now,
	}
}

// Spec is one batched metrics computation.
type Spec struct {
	Account      int64
	Repositories []string
	Requests     []Request
	Quantiles    metrics.Quantiles
}

// Result maps interval → metric → team → value.
type Result map[Interval]map[string]map[int]metrics.Metric

// ValidateWindow rejects inverted or future windows with field-precise
// pointers.
func (p *Planner) ValidateWindow(validFrom, expiresAt time.Time) error {
	if validFrom.After(expiresAt) {
		return errors.Invalid(".validFrom or .expiresAt",
			"validFrom must not exceed expiresAt")
	}
	if validFrom.After(p.now()) {
		return errors.Invalid(".validFrom", "validFrom lies in the future")
	}
	return nil
}

// Calculate runs the whole pipeline: simplify, triage, one concurrent mining
// batch per non-empty family, and the scatter back to cells. A family failure
// fails the whole computation with the cause preserved.
func (p *Planner) Calculate(ctx context.Context, spec Spec) (Result, error) {
	canonical := simplify(spec.Requests)
	result := Result{}
	for _, cr := range canonical {
		fams, err := triage(cr.metrics)
		if err != nil {
			return nil, err
		}
		if err := p.calculateCanonical(ctx, spec, cr, fams, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (p *Planner) calculateCanonical(ctx context.Context, spec Spec, cr canonicalRequest, fams families, result Result) error {
	from, to := window(cr.intervals)

	var prGrid prResultGrid
	var relGrid teamResultGrid
	var jiraGrid teamResultGrid

	g, gctx := errgroup.WithContext(ctx)
	if len(fams.pr) > 0 {
		g.Go(func() error {
			grid, err := p.minePRFamily(gctx, spec, cr, fams.pr, from, to)
			if err != nil {
				return errors.Internal(err, "PR metrics pipeline failed")
			}
			prGrid = grid
			return nil
		})
	}
	if len(fams.release) > 0 {
		g.Go(func() error {
			grid, err := p.mineReleaseFamily(gctx, spec, cr, fams.release, from, to)
			if err != nil {
				return errors.Internal(err, "release metrics pipeline failed")
			}
			relGrid = grid
			return nil
		})
	}
	if len(fams.jira) > 0 {
		g.Go(func() error {
			grid, err := p.mineJIRAFamily(gctx, spec, cr, fams.jira, from, to)
			if err != nil {
				return errors.Internal(err, "JIRA metrics pipeline failed")
			}
			jiraGrid = grid
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if prGrid != nil {
		scatterPRGrid(result, cr, fams.pr, prGrid)
	}
	if relGrid != nil {
		scatterTeamGrid(result, cr, fams.release, relGrid)
	}
	if jiraGrid != nil {
		scatterTeamGrid(result, cr, fams.jira, jiraGrid)
	}
	return nil
}

// teamLogins resolves a team's member node ids to logins. An empty member
// list means "everyone".
func (p *Planner) teamLogins(members []int64) map[string]bool {
	if len(members) == 0 {
		return nil
	}
	set := make(map[string]bool, len(members))
	for _, id := range members {
		if login := p.prefixer.UserLogin(id); login != "" {
			set[login] = true
		}
	}
	return set
}

func (p *Planner) minePRFamily(ctx context.Context, spec Spec, cr canonicalRequest, names []string, from, to time.Time) (prResultGrid, error) {
	facts, err := p.prs.MineFacts(ctx, pr.Options{
		Account:      spec.Account,
		From:         from,
		To:           to,
		Repositories: spec.Repositories,
	})
	if err != nil {
		return nil, err
	}
	grid := newPRResultGrid(len(cr.teams), len(cr.intervals), len(names))
	for ti, team := range cr.teams {
		logins := p.teamLogins(cr.members[team])
		scoped := facts
		if logins != nil {
			scoped = scoped[:0:0]
			for _, f := range facts {
				if logins[f.Author] {
					scoped = append(scoped, f)
				}
			}
		}
		for ii, iv := range cr.intervals {
			for mi, name := range names {
				calc, _ := metrics.PR(name)
				grid[0][0][ti][ii][0][mi] = calc.Analyze(scoped, iv.From, iv.To, spec.Quantiles)
			}
		}
	}
	return grid, nil
}

func (p *Planner) mineReleaseFamily(ctx context.Context, spec Spec, cr canonicalRequest, names []string, from, to time.Time) (teamResultGrid, error) {
	mined, err := p.releases.Mine(ctx, spec.Account, spec.Repositories, from, to)
	if err != nil {
		return nil, err
	}
	grid := newTeamResultGrid(len(cr.teams), len(cr.intervals), len(names))
	for ti, team := range cr.teams {
		logins := p.teamLogins(cr.members[team])
		var scoped []*models.ReleaseFacts
		for i := range mined {
			f := &mined[i].Facts
			if logins != nil && !anyAuthor(f.CommitAuthors, logins) {
				continue
			}
			scoped = append(scoped, f)
		}
		for ii, iv := range cr.intervals {
			for mi, name := range names {
				calc, _ := metrics.Release(name)
				grid[ti][0][ii][0][mi] = calc.Analyze(scoped, iv.From, iv.To, spec.Quantiles)
			}
		}
	}
	return grid, nil
}

func (p *Planner) mineJIRAFamily(ctx context.Context, spec Spec, cr canonicalRequest, names []string, from, to time.Time) (teamResultGrid, error) {
	grid := newTeamResultGrid(len(cr.teams), len(cr.intervals), len(names))
	for ti, team := range cr.teams {
		assignees, err := p.jira.MapMembers(ctx, spec.Account, cr.members[team])
		if err != nil {
			return nil, err
		}
		issues, err := p.jira.MineIssues(ctx, spec.Account, assignees, from, to)
		if err != nil {
			return nil, err
		}
		for ii, iv := range cr.intervals {
			for mi, name := range names {
				calc, _ := metrics.JIRA(name)
				grid[ti][0][ii][0][mi] = calc.Analyze(issues, iv.From, iv.To, spec.Quantiles)
			}
		}
	}
	return grid, nil
}

func anyAuthor(authors []string, logins map[string]bool) bool {
	for _, a := range authors {
		if logins[a] {
			return true
		}
	}
	return false
}
