// Package prefixer resolves metadata node ids to human identifiers and loads
// the per-repository release matching rules. Every mining call starts here:
// the maps it produces scope the rest of the pipeline and feed the cache
// fingerprints.
package prefixer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/shipfacts/shipfacts/internal/dbgate"
	"github.com/shipfacts/shipfacts/internal/models"
)

// Prefixer holds the node-id resolution maps for one account.
type Prefixer struct {
	users map[int64]string // user node id -> login
	repos map[int64]string // repository node id -> full name
}

// Load fetches the identity maps from the metadata store.
func Load(ctx context.Context, mdb *dbgate.Pool, metaIDs []int64) (*Prefixer, error) {
	p := &Prefixer{
		users: make(map[int64]string),
		repos: make(map[int64]string),
	}
	if err := scanPairs(ctx, mdb,
		`SELECT node_id, login FROM github.users WHERE acc_id = ANY($1)`,
		metaIDs, p.users); err != nil {
		return nil, fmt.Errorf("failed to load user map: %w", err)
	}
	if err := scanPairs(ctx, mdb,
		`SELECT node_id, full_name FROM github.repositories WHERE acc_id = ANY($1)`,
		metaIDs, p.repos); err != nil {
		return nil, fmt.Errorf("failed to load repository map: %w", err)
	}
	slog.Default().With("component", "prefixer").Debug("identity maps loaded",
		"users", len(p.users), "repos", len(p.repos))
	return p, nil
}

// NewStatic builds a prefixer from in-memory maps; used by tests and by the
// heater when replaying cached identities.
func NewStatic(users, repos map[int64]string) *Prefixer {
	if users == nil {
		users = map[int64]string{}
	}
	if repos == nil {
		repos = map[int64]string{}
	}
	return &Prefixer{users: users, repos: repos}
}

func scanPairs(ctx context.Context, mdb *dbgate.Pool, query string, metaIDs []int64, into map[int64]string) error {
	rows, err := mdb.Query(ctx, query, metaIDs)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return err
		}
		into[id] = name
	}
	return rows.Err()
}

// UserLogin resolves a user node id; empty when unknown.
func (p *Prefixer) UserLogin(id int64) string { return p.users[id] }

// RepoName resolves a repository node id; empty when unknown.
func (p *Prefixer) RepoName(id int64) string { return p.repos[id] }

// UserNodeIDs returns the node ids whose logins appear in the given set.
func (p *Prefixer) UserNodeIDs(logins []string) []int64 {
	want := make(map[string]struct{}, len(logins))
	for _, l := range logins {
		want[l] = struct{}{}
	}
	var ids []int64
	for id, login := range p.users {
		if _, ok := want[login]; ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// RepoNames resolves a batch of repository node ids, skipping unknown ones.
func (p *Prefixer) RepoNames(ids []int64) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := p.repos[id]; ok {
			names = append(names, name)
		}
	}
	return names
}

// DefaultBranchAlias is the placeholder accepted in branch match globs.
const DefaultBranchAlias = "{{default}}"

// ReleaseSettings are the per-repository release matching rules of an
// account. Repositories without an explicit row fall back to tag-or-branch
// against the default branch.
type ReleaseSettings struct {
	byRepo map[string]models.ReleaseMatchSetting
}

// DefaultReleaseSetting applies when the account never configured a
// repository.
var DefaultReleaseSetting = models.ReleaseMatchSetting{
	Match:      models.ReleaseMatchTagOrBranch,
	TagRegex:   ".*",
	BranchGlob: DefaultBranchAlias,
}

// LoadReleaseSettings fetches the rules from the state store.
func LoadReleaseSettings(ctx context.Context, sdb *dbgate.SQLStore, account int64, repos []string) (*ReleaseSettings, error) {
	s := &ReleaseSettings{byRepo: make(map[string]models.ReleaseMatchSetting, len(repos))}
	if len(repos) == 0 {
		return s, nil
	}
	var rows []struct {
		Repository string `db:"repository"`
		Match      string `db:"match"`
		Tags       string `db:"tags"`
		Branches   string `db:"branches"`
	}
	query, args, err := dbgate.In(
		`SELECT repository, match, tags, branches
		 FROM release_settings WHERE account_id = ? AND repository IN (?)`,
		account, repos)
	if err != nil {
		return nil, fmt.Errorf("failed to build release settings query: %w", err)
	}
	if err := sdb.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load release settings: %w", err)
	}
	for _, row := range rows {
		s.byRepo[row.Repository] = models.ReleaseMatchSetting{
			Match:      models.ReleaseMatch(row.Match),
			TagRegex:   row.Tags,
			BranchGlob: row.Branches,
		}
	}
	return s, nil
}

// LoadReleaseSettingsFile reads a repository → rule mapping from a YAML file.
// Operators use it to seed accounts that never configured rules themselves.
func LoadReleaseSettingsFile(path string) (map[string]models.ReleaseMatchSetting, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read release settings file: %w", err)
	}
	var rules map[string]models.ReleaseMatchSetting
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse release settings file %s: %w", path, err)
	}
	return rules, nil
}

// For returns the setting for a repository, falling back to the default.
func (s *ReleaseSettings) For(repo string) models.ReleaseMatchSetting {
	if setting, ok := s.byRepo[repo]; ok {
		return setting
	}
	return DefaultReleaseSetting
}

// Set overrides the setting for one repository.
func (s *ReleaseSettings) Set(repo string, setting models.ReleaseMatchSetting) {
	s.byRepo[repo] = setting
}

// Fingerprint renders a repository's rule as a stable "kind|pattern" string
// for cache keys.
func (s *ReleaseSettings) Fingerprint(repo string) string {
	setting := s.For(repo)
	switch setting.Match {
	case models.ReleaseMatchTag:
		return fmt.Sprintf("%s|%s", setting.Match, setting.TagRegex)
	case models.ReleaseMatchBranch:
		return fmt.Sprintf("%s|%s", setting.Match, setting.BranchGlob)
	case models.ReleaseMatchEvent:
		return string(models.ReleaseMatchEvent) + "|"
	default:
		return fmt.Sprintf("%s|%s|%s", setting.Match, setting.TagRegex, setting.BranchGlob)
	}
}

// FingerprintMap renders the rules of every repository in the set, for the
// cache fingerprint builder.
func (s *ReleaseSettings) FingerprintMap(repos []string) map[string]string {
	m := make(map[string]string, len(repos))
	for _, r := range repos {
		m[r] = s.Fingerprint(r)
	}
	return m
}
