package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func build(topic string, version int, repos []string, rules map[string]string) Fingerprint {
	return NewFingerprint(topic, version).
		Int64(1).
		Time(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)).
		Strings(repos).
		Map(rules).
		Done()
}

func TestFingerprintDeterministic(t *testing.T) {
	a := build("pr_facts", 4, []string{"acme/api", "acme/web"},
		map[string]string{"acme/api": "tag|.*", "acme/web": "branch|main"})
	b := build("pr_facts", 4, []string{"acme/web", "acme/api"},
		map[string]string{"acme/web": "branch|main", "acme/api": "tag|.*"})
	// collection order never leaks into the hash
	assert.Equal(t, a, b)
	assert.Equal(t, "pr_facts", a.Topic)
	assert.Contains(t, a.String(), "pr_facts:")
}

func TestFingerprintFormatVersionInvalidates(t *testing.T) {
	repos := []string{"acme/api"}
	rules := map[string]string{"acme/api": "tag|.*"}
	v4 := build("pr_facts", 4, repos, rules)
	v5 := build("pr_facts", 5, repos, rules)
	assert.NotEqual(t, v4.Sum, v5.Sum)
}

func TestFingerprintTopicSeparatesKeys(t *testing.T) {
	repos := []string{"acme/api"}
	prs := build("pr_facts", 4, repos, nil)
	releases := build("releases", 4, repos, nil)
	assert.NotEqual(t, prs.String(), releases.String())
}

func TestFingerprintSensitiveToInputs(t *testing.T) {
	base := build("pr_facts", 4, []string{"acme/api"}, nil)
	otherRepo := build("pr_facts", 4, []string{"acme/web"}, nil)
	otherRule := build("pr_facts", 4, []string{"acme/api"},
		map[string]string{"acme/api": "branch|release/*"})
	assert.NotEqual(t, base.Sum, otherRepo.Sum)
	assert.NotEqual(t, base.Sum, otherRule.Sum)
}
