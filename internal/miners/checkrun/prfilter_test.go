package checkrun

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipfacts/shipfacts/internal/miners/pr"
)

func scopedTable() *Table {
	tbl := &Table{}
	tbl.Append(Row{CheckRunNodeID: 1, Name: "unit", PRNodeID: 10,
		StartedAt: ts("2023-05-02T10:00:00Z")})
	tbl.Append(Row{CheckRunNodeID: 2, Name: "unit", PRNodeID: 20,
		StartedAt: ts("2023-05-02T11:00:00Z")})
	// unattributed run
	tbl.Append(Row{CheckRunNodeID: 3, Name: "unit",
		StartedAt: ts("2023-05-02T12:00:00Z")})
	return tbl
}

func TestFilterByPRJIRAKeys(t *testing.T) {
	tbl := scopedTable()
	scopes := map[int64]prScope{
		10: {JIRAIDs: []string{"DEV-101"}},
		20: {JIRAIDs: []string{"OPS-7"}},
	}
	filterByPR(tbl, scopes, []string{"dev-101"}, pr.LabelFilter{})
	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, int64(10), tbl.PRNodeID[0])
}

func TestFilterByPRLabels(t *testing.T) {
	tbl := scopedTable()
	scopes := map[int64]prScope{
		10: {Labels: map[string]string{"Bug": ""}},
		20: {Labels: map[string]string{"chore": ""}},
	}
	filterByPR(tbl, scopes, nil, pr.ParseLabelFilter([]string{"bug"}, nil))
	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, int64(10), tbl.PRNodeID[0])
}

func TestFilterByPRExcludeLabelWins(t *testing.T) {
	tbl := scopedTable()
	scopes := map[int64]prScope{
		10: {JIRAIDs: []string{"DEV-101"}, Labels: map[string]string{"bug": "", "wontfix": ""}},
		20: {JIRAIDs: []string{"DEV-101"}},
	}
	filterByPR(tbl, scopes, []string{"DEV-101"}, pr.ParseLabelFilter(nil, []string{"wontfix"}))
	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, int64(20), tbl.PRNodeID[0])
}

func TestFilterByPRDropsUnattributed(t *testing.T) {
	tbl := scopedTable()
	filterByPR(tbl, nil, []string{"DEV-101"}, pr.LabelFilter{})
	assert.Zero(t, tbl.Len())
}
