package release

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shipfacts/shipfacts/internal/models"
	"github.com/shipfacts/shipfacts/internal/prefixer"
)

// linear history: a <- b <- c, with d on a side branch merged at c
func testDAG() *DAG {
	d := NewDAG("acme/api")
	d.Extend([]models.Commit{
		{SHA: "a", ParentSHAs: nil},
		{SHA: "b", ParentSHAs: []string{"a"}},
		{SHA: "d", ParentSHAs: []string{"a"}},
		{SHA: "c", ParentSHAs: []string{"b", "d"}},
	})
	return d
}

func TestAncestryFull(t *testing.T) {
	d := testDAG()
	got := d.Ancestry("c", nil)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, got)
}

func TestAncestryStopsAtOwnedCommits(t *testing.T) {
	d := testDAG()
	owned := map[string]bool{}
	for _, sha := range d.Ancestry("b", nil) {
		owned[sha] = true
	}
	assert.ElementsMatch(t, []string{"a", "b"}, d.Ancestry("b", nil))
	// the next release only owns what the previous one did not reach
	assert.ElementsMatch(t, []string{"c", "d"}, d.Ancestry("c", owned))
}

func TestAncestryUnknownHead(t *testing.T) {
	d := testDAG()
	assert.Nil(t, d.Ancestry("zzz", nil))
}

func TestAncestryPartialHistory(t *testing.T) {
	d := NewDAG("acme/api")
	d.Extend([]models.Commit{
		{SHA: "c", ParentSHAs: []string{"b"}}, // parent b not mined yet
	})
	assert.Equal(t, []string{"c"}, d.Ancestry("c", nil))
}

func TestMatchTag(t *testing.T) {
	setting := models.ReleaseMatchSetting{Match: models.ReleaseMatchTag, TagRegex: `v\d+\.\d+\.\d+`}
	ok, err := MatchTag(setting, "v1.2.3")
	assert.NoError(t, err)
	assert.True(t, ok)
	ok, err = MatchTag(setting, "nightly-build")
	assert.NoError(t, err)
	assert.False(t, ok)
	// the pattern is anchored
	ok, _ = MatchTag(setting, "xv1.2.3x")
	assert.False(t, ok)
}

func TestMatchTagEmptyPatternMatchesAll(t *testing.T) {
	ok, err := MatchTag(models.ReleaseMatchSetting{}, "anything")
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestMatchBranch(t *testing.T) {
	setting := models.ReleaseMatchSetting{Match: models.ReleaseMatchBranch, BranchGlob: "release/*"}
	ok, err := MatchBranch(setting, "release/2023-q1", "main")
	assert.NoError(t, err)
	assert.True(t, ok)
	ok, _ = MatchBranch(setting, "main", "main")
	assert.False(t, ok)
}

func TestMatchBranchDefaultAlias(t *testing.T) {
	setting := models.ReleaseMatchSetting{BranchGlob: prefixer.DefaultBranchAlias}
	ok, err := MatchBranch(setting, "main", "main")
	assert.NoError(t, err)
	assert.True(t, ok)
	ok, _ = MatchBranch(setting, "develop", "main")
	assert.False(t, ok)
}
