package checkrun

import (
	"context"
	"fmt"
	"strings"

	"github.com/shipfacts/shipfacts/internal/errors"
	"github.com/shipfacts/shipfacts/internal/miners/pr"
)

// prScope is the JIRA and label context of one attributed PR.
type prScope struct {
	JIRAIDs []string
	Labels  map[string]string
}

// fetchPRScopes loads the issue keys and labels of every attributed PR in the
// table. PRs without links or labels simply have no entry.
func (m *Miner) fetchPRScopes(ctx context.Context, t *Table) (map[int64]prScope, error) {
	seen := map[int64]bool{}
	var ids []int64
	for i := 0; i < t.Len(); i++ {
		if id := t.PRNodeID[i]; id != 0 && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	scopes := map[int64]prScope{}
	err := m.scanPRStrings(ctx, `
		SELECT pull_request_node_id, issue_key
		FROM jira.pull_request_issues
		WHERE pull_request_node_id = ANY($1)`, ids,
		func(id int64, key string) {
			s := scopes[id]
			s.JIRAIDs = append(s.JIRAIDs, key)
			scopes[id] = s
		})
	if err != nil {
		return nil, err
	}
	err = m.scanPRStrings(ctx, `
		SELECT pull_request_node_id, name
		FROM github.pull_request_labels
		WHERE pull_request_node_id = ANY($1)`, ids,
		func(id int64, name string) {
			s := scopes[id]
			if s.Labels == nil {
				s.Labels = map[string]string{}
			}
			s.Labels[name] = ""
			scopes[id] = s
		})
	if err != nil {
		return nil, err
	}
	return scopes, nil
}

func (m *Miner) scanPRStrings(ctx context.Context, query string, ids []int64, visit func(int64, string)) error {
	rows, err := m.mdb.Query(ctx, query, ids)
	if err != nil {
		return errors.Unavailable(err, "check run PR scope fetch failed")
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var value string
		if err := rows.Scan(&id, &value); err != nil {
			return fmt.Errorf("failed to scan PR scope row: %w", err)
		}
		visit(id, value)
	}
	return rows.Err()
}

// filterByPR keeps the runs whose attributed PR carries one of the wanted
// JIRA keys and passes the label filter. Runs without a PR cannot match.
func filterByPR(t *Table, scopes map[int64]prScope, jiraKeys []string, labels pr.LabelFilter) {
	want := make(map[string]bool, len(jiraKeys))
	for _, k := range jiraKeys {
		want[strings.ToUpper(k)] = true
	}
	mask := make([]bool, t.Len())
	for i := range mask {
		if t.PRNodeID[i] == 0 {
			continue
		}
		s := scopes[t.PRNodeID[i]]
		if len(want) > 0 {
			matched := false
			for _, key := range s.JIRAIDs {
				if want[strings.ToUpper(key)] {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		if !labels.Match(s.Labels) {
			continue
		}
		mask[i] = true
	}
	t.Keep(mask)
}
