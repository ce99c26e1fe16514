package planner

import "github.com/shipfacts/shipfacts/internal/metrics"

// The miners hand back nested value grids whose indexing mirrors the batch
// structure. The PR family carries two leading singleton axes
// ([0][0][team][interval][0][metric]); the release and JIRA families lead
// with the team axis ([team][0][interval][0][metric]). The scatter step is
// the only place aware of these shapes.

type prResultGrid [][][][][][]metrics.Metric

func newPRResultGrid(teams, intervals, names int) prResultGrid {
	grid := make(prResultGrid, 1)
	grid[0] = make([][][][][]metrics.Metric, 1)
	grid[0][0] = make([][][][]metrics.Metric, teams)
	for t := range grid[0][0] {
		grid[0][0][t] = make([][][]metrics.Metric, intervals)
		for i := range grid[0][0][t] {
			grid[0][0][t][i] = make([][]metrics.Metric, 1)
			grid[0][0][t][i][0] = make([]metrics.Metric, names)
		}
	}
	return grid
}

type teamResultGrid [][][][][]metrics.Metric

func newTeamResultGrid(teams, intervals, names int) teamResultGrid {
	grid := make(teamResultGrid, teams)
	for t := range grid {
		grid[t] = make([][][][]metrics.Metric, 1)
		grid[t][0] = make([][][]metrics.Metric, intervals)
		for i := range grid[t][0] {
			grid[t][0][i] = make([][]metrics.Metric, 1)
			grid[t][0][i][0] = make([]metrics.Metric, names)
		}
	}
	return grid
}

func cell(result Result, iv Interval, metric string, team int, value metrics.Metric) {
	byMetric := result[iv]
	if byMetric == nil {
		byMetric = map[string]map[int]metrics.Metric{}
		result[iv] = byMetric
	}
	byTeam := byMetric[metric]
	if byTeam == nil {
		byTeam = map[int]metrics.Metric{}
		byMetric[metric] = byTeam
	}
	byTeam[team] = value
}

func scatterPRGrid(result Result, cr canonicalRequest, names []string, grid prResultGrid) {
	for ti, team := range cr.teams {
		for ii, iv := range cr.intervals {
			for mi, name := range names {
				cell(result, iv, name, team, grid[0][0][ti][ii][0][mi])
			}
		}
	}
}

func scatterTeamGrid(result Result, cr canonicalRequest, names []string, grid teamResultGrid) {
	for ti, team := range cr.teams {
		for ii, iv := range cr.intervals {
			for mi, name := range names {
				cell(result, iv, name, team, grid[ti][0][ii][0][mi])
			}
		}
	}
}
