package pr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabelFilterConjunctionOfDisjunctions(t *testing.T) {
	// (bug OR regression) AND (backend)
	f := ParseLabelFilter([]string{"bug,regression", "backend"}, nil)

	assert.True(t, f.Match(map[string]string{"bug": "", "backend": ""}))
	assert.True(t, f.Match(map[string]string{"Regression": "", "Backend": ""}))
	assert.False(t, f.Match(map[string]string{"bug": ""}))
	assert.False(t, f.Match(map[string]string{"backend": ""}))
}

func TestLabelFilterExcludeWins(t *testing.T) {
	f := ParseLabelFilter([]string{"bug"}, []string{"wontfix"})
	assert.True(t, f.Match(map[string]string{"bug": ""}))
	assert.False(t, f.Match(map[string]string{"bug": "", "WontFix": ""}))
}

func TestLabelFilterEmptyPassesAll(t *testing.T) {
	f := ParseLabelFilter(nil, nil)
	assert.True(t, f.Empty())
	assert.True(t, f.Match(nil))
	assert.True(t, f.Match(map[string]string{"anything": ""}))
}

func TestLabelFilterKeyDeterministic(t *testing.T) {
	a := ParseLabelFilter([]string{"bug,regression", "backend"}, []string{"wontfix"})
	b := ParseLabelFilter([]string{"bug,regression", "backend"}, []string{"wontfix"})
	assert.Equal(t, a.Key(), b.Key())
	c := ParseLabelFilter([]string{"bug"}, nil)
	assert.NotEqual(t, a.Key(), c.Key())
}
