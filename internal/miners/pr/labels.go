package pr

import "strings"

// LabelFilter selects PRs by label after mining, so that PR attribution never
// depends on labels. Include groups are a conjunction of disjunctions: each
// group must match at least one label. Exclude wins over include.
type LabelFilter struct {
	Include [][]string
	Exclude []string
}

// ParseLabelFilter builds a filter from raw API inputs. A comma-joined
// include item forms one disjunction group; separate items are AND-ed.
// Matching is case-folded.
func ParseLabelFilter(include, exclude []string) LabelFilter {
	var f LabelFilter
	for _, item := range include {
		var group []string
		for _, name := range strings.Split(item, ",") {
			if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
				group = append(group, name)
			}
		}
		if len(group) > 0 {
			f.Include = append(f.Include, group)
		}
	}
	for _, name := range exclude {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			f.Exclude = append(f.Exclude, name)
		}
	}
	return f
}

// Empty reports whether the filter passes everything.
func (f LabelFilter) Empty() bool {
	return len(f.Include) == 0 && len(f.Exclude) == 0
}

// Match evaluates the filter against a PR's label set (names case-folded by
// the caller or not; folding happens here).
func (f LabelFilter) Match(labels map[string]string) bool {
	folded := make(map[string]bool, len(labels))
	for name := range labels {
		folded[strings.ToLower(name)] = true
	}
	for _, name := range f.Exclude {
		if folded[name] {
			return false
		}
	}
	for _, group := range f.Include {
		matched := false
		for _, name := range group {
			if folded[name] {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// Key renders the filter deterministically for cache fingerprints.
func (f LabelFilter) Key() string {
	var sb strings.Builder
	for _, group := range f.Include {
		sb.WriteString(strings.Join(group, ","))
		sb.WriteString("&")
	}
	sb.WriteString("!")
	sb.WriteString(strings.Join(f.Exclude, ","))
	return sb.String()
}
