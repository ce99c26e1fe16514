// Package teams loads an account's team hierarchy from the state store and
// shapes it for metric grouping and responses.
package teams

import (
	"context"
	"fmt"
	"sort"

	"github.com/shipfacts/shipfacts/internal/dbgate"
	"github.com/shipfacts/shipfacts/internal/errors"
	"github.com/shipfacts/shipfacts/internal/models"
)

// FetchRecursively returns the teams rooted at rootIDs together with every
// descendant, walking parent_id links breadth-first. Passing no roots returns
// the whole account forest.
func FetchRecursively(ctx context.Context, sdb *dbgate.SQLStore, account int64, rootIDs []int64) ([]models.Team, error) {
	var all []models.Team
	if err := sdb.Select(ctx, &all,
		`SELECT id, owner_id, name, parent_id FROM teams WHERE owner_id = ?`,
		account); err != nil {
		return nil, fmt.Errorf("failed to fetch teams of account %d: %w", account, err)
	}
	byID := make(map[int64]*models.Team, len(all))
	children := make(map[int64][]int64, len(all))
	for i := range all {
		t := &all[i]
		byID[t.ID] = t
		if t.ParentID != nil {
			children[*t.ParentID] = append(children[*t.ParentID], t.ID)
		}
	}
	if err := loadMembers(ctx, sdb, byID); err != nil {
		return nil, err
	}
	if len(rootIDs) == 0 {
		return all, nil
	}
	var picked []models.Team
	seen := make(map[int64]bool, len(all))
	queue := make([]int64, 0, len(rootIDs))
	for _, id := range rootIDs {
		if _, ok := byID[id]; !ok {
			return nil, errors.NotFound("team %d does not exist in account %d", id, account)
		}
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		picked = append(picked, *byID[id])
		queue = append(queue, children[id]...)
	}
	return picked, nil
}

func loadMembers(ctx context.Context, sdb *dbgate.SQLStore, byID map[int64]*models.Team) error {
	if len(byID) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	var rows []struct {
		TeamID int64 `db:"team_id"`
		Member int64 `db:"member_id"`
	}
	query, args, err := dbgate.In(
		`SELECT team_id, member_id FROM team_members WHERE team_id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("failed to build team members query: %w", err)
	}
	if err := sdb.Select(ctx, &rows, query, args...); err != nil {
		return fmt.Errorf("failed to fetch team members: %w", err)
	}
	for _, row := range rows {
		t := byID[row.TeamID]
		t.Members = append(t.Members, row.Member)
	}
	for _, t := range byID {
		sort.Slice(t.Members, func(i, j int) bool { return t.Members[i] < t.Members[j] })
	}
	return nil
}

// Flatten maps each team id to the union of its own members and every
// descendant's members. Cycles are tolerated: a team is visited once.
func Flatten(teams []models.Team) map[int64][]int64 {
	children := make(map[int64][]int64, len(teams))
	members := make(map[int64][]int64, len(teams))
	for _, t := range teams {
		members[t.ID] = t.Members
		if t.ParentID != nil {
			children[*t.ParentID] = append(children[*t.ParentID], t.ID)
		}
	}
	out := make(map[int64][]int64, len(teams))
	for _, t := range teams {
		set := make(map[int64]struct{})
		visited := make(map[int64]bool)
		var walk func(id int64)
		walk = func(id int64) {
			if visited[id] {
				return
			}
			visited[id] = true
			for _, m := range members[id] {
				set[m] = struct{}{}
			}
			for _, c := range children[id] {
				walk(c)
			}
		}
		walk(t.ID)
		flat := make([]int64, 0, len(set))
		for m := range set {
			flat = append(flat, m)
		}
		sort.Slice(flat, func(i, j int) bool { return flat[i] < flat[j] })
		out[t.ID] = flat
	}
	return out
}

// BuildTree assembles the response tree rooted at rootID. Teams not reachable
// from the root are ignored. Children are ordered by name for stable output.
func BuildTree(teams []models.Team, rootID int64) (*models.TeamTree, error) {
	byID := make(map[int64]models.Team, len(teams))
	children := make(map[int64][]int64, len(teams))
	for _, t := range teams {
		byID[t.ID] = t
		if t.ParentID != nil {
			children[*t.ParentID] = append(children[*t.ParentID], t.ID)
		}
	}
	root, ok := byID[rootID]
	if !ok {
		return nil, errors.NotFound("team %d does not exist", rootID)
	}
	flat := Flatten(teams)
	visited := make(map[int64]bool, len(teams))
	var build func(t models.Team) *models.TeamTree
	build = func(t models.Team) *models.TeamTree {
		visited[t.ID] = true
		node := &models.TeamTree{ID: t.ID, Name: t.Name, Members: flat[t.ID]}
		kids := children[t.ID]
		sort.Slice(kids, func(i, j int) bool { return byID[kids[i]].Name < byID[kids[j]].Name })
		for _, c := range kids {
			if visited[c] {
				continue
			}
			node.Children = append(node.Children, build(byID[c]))
		}
		return node
	}
	return build(root), nil
}
