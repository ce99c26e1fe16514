package planner

import (
	"context"
	"time"

	"github.com/shipfacts/shipfacts/internal/dbgate"
	"github.com/shipfacts/shipfacts/internal/metrics"
	"github.com/shipfacts/shipfacts/internal/models"
	"github.com/shipfacts/shipfacts/internal/teams"
)

// ValueTree mirrors the team tree with the metric value of each node
// attached.
type ValueTree struct {
	TeamID   int64          `json:"team_id"`
	Name     string         `json:"name"`
	Value    metrics.Metric `json:"value"`
	Children []*ValueTree   `json:"children,omitempty"`
}

// CurrentValue pairs one requested metric with the rooted team tree carrying
// its values.
type CurrentValue struct {
	Metric string     `json:"metric"`
	Tree   *ValueTree `json:"team"`
}

// CurrentValuesParams shape the metricsCurrentValues operation.
type CurrentValuesParams struct {
	TeamID    int64
	Metrics   []string
	ValidFrom time.Time
	ExpiresAt time.Time
}

// CurrentValues computes the requested metrics for every team in the subtree
// rooted at params.TeamID over [ValidFrom, ExpiresAt) and shapes them as one
// value tree per metric.
func (p *Planner) CurrentValues(ctx context.Context, sdb *dbgate.SQLStore, spec Spec, params CurrentValuesParams) ([]CurrentValue, error) {
	if err := p.ValidateWindow(params.ValidFrom, params.ExpiresAt); err != nil {
		return nil, err
	}
	subtree, err := teams.FetchRecursively(ctx, sdb, spec.Account, []int64{params.TeamID})
	if err != nil {
		return nil, err
	}
	tree, err := teams.BuildTree(subtree, params.TeamID)
	if err != nil {
		return nil, err
	}
	flat := teams.Flatten(subtree)
	iv := Interval{From: params.ValidFrom, To: params.ExpiresAt}
	members := make(map[int][]int64, len(subtree))
	for _, t := range subtree {
		members[int(t.ID)] = flat[t.ID]
	}
	spec.Requests = []Request{{
		Metrics:   params.Metrics,
		Intervals: []Interval{iv},
		Teams:     members,
	}}
	result, err := p.Calculate(ctx, spec)
	if err != nil {
		return nil, err
	}
	out := make([]CurrentValue, 0, len(params.Metrics))
	for _, name := range params.Metrics {
		byTeam := result[iv][name]
		var decorate func(node *models.TeamTree) *ValueTree
		decorate = func(node *models.TeamTree) *ValueTree {
			vt := &ValueTree{
				TeamID: node.ID,
				Name:   node.Name,
				Value:  byTeam[int(node.ID)],
			}
			for _, child := range node.Children {
				vt.Children = append(vt.Children, decorate(child))
			}
			return vt
		}
		out = append(out, CurrentValue{Metric: name, Tree: decorate(tree)})
	}
	return out, nil
}
