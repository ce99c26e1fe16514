// Package release resolves the releases of each repository according to the
// account's matching rules and attributes merged PRs to the first release
// containing them.
package release

import (
	"fmt"
	"path"
	"regexp"
	"sync"

	"github.com/shipfacts/shipfacts/internal/models"
	"github.com/shipfacts/shipfacts/internal/prefixer"
)

var tagRegexCache sync.Map // pattern -> *regexp.Regexp

func tagRegex(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		pattern = ".*"
	}
	if cached, ok := tagRegexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		return nil, fmt.Errorf("invalid tag pattern %q: %w", pattern, err)
	}
	tagRegexCache.Store(pattern, re)
	return re, nil
}

// MatchTag reports whether a tag name satisfies the repository's tag rule.
func MatchTag(setting models.ReleaseMatchSetting, tag string) (bool, error) {
	re, err := tagRegex(setting.TagRegex)
	if err != nil {
		return false, err
	}
	return re.MatchString(tag), nil
}

// MatchBranch reports whether a branch satisfies the repository's branch
// glob. The {{default}} alias resolves to the repository's default branch.
func MatchBranch(setting models.ReleaseMatchSetting, branch, defaultBranch string) (bool, error) {
	glob := setting.BranchGlob
	if glob == "" || glob == prefixer.DefaultBranchAlias {
		return branch == defaultBranch, nil
	}
	ok, err := path.Match(glob, branch)
	if err != nil {
		return false, fmt.Errorf("invalid branch pattern %q: %w", glob, err)
	}
	return ok, nil
}
