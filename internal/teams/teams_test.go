package teams

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipfacts/shipfacts/internal/models"
)

func pid(v int64) *int64 { return &v }

func fixture() []models.Team {
	return []models.Team{
		{ID: 1, Name: "Engineering", Members: []int64{100}},
		{ID: 2, Name: "Backend", ParentID: pid(1), Members: []int64{101, 102}},
		{ID: 3, Name: "Frontend", ParentID: pid(1), Members: []int64{103}},
		{ID: 4, Name: "Infra", ParentID: pid(2), Members: []int64{102, 104}},
	}
}

func TestFlattenUnionsDescendants(t *testing.T) {
	flat := Flatten(fixture())
	assert.Equal(t, []int64{100, 101, 102, 103, 104}, flat[1])
	assert.Equal(t, []int64{101, 102, 104}, flat[2])
	assert.Equal(t, []int64{103}, flat[3])
	assert.Equal(t, []int64{102, 104}, flat[4])
}

func TestFlattenToleratesCycle(t *testing.T) {
	teams := []models.Team{
		{ID: 1, Name: "A", ParentID: pid(2), Members: []int64{10}},
		{ID: 2, Name: "B", ParentID: pid(1), Members: []int64{20}},
	}
	flat := Flatten(teams)
	assert.Equal(t, []int64{10, 20}, flat[1])
	assert.Equal(t, []int64{10, 20}, flat[2])
}

func TestBuildTree(t *testing.T) {
	tree, err := BuildTree(fixture(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Engineering", tree.Name)
	require.Len(t, tree.Children, 2)
	// ordered by name
	assert.Equal(t, "Backend", tree.Children[0].Name)
	assert.Equal(t, "Frontend", tree.Children[1].Name)
	require.Len(t, tree.Children[0].Children, 1)
	assert.Equal(t, "Infra", tree.Children[0].Children[0].Name)
	// node members are flattened
	assert.Equal(t, []int64{101, 102, 104}, tree.Children[0].Members)
}

func TestBuildTreeMissingRoot(t *testing.T) {
	_, err := BuildTree(fixture(), 99)
	assert.Error(t, err)
}
