package pr

import (
	"sort"
	"time"
)

// Role is a participation kind used to filter candidate PRs.
type Role string

const (
	RoleAuthor          Role = "author"
	RoleReviewer        Role = "reviewer"
	RoleCommitAuthor    Role = "commit_author"
	RoleCommitCommitter Role = "commit_committer"
	RoleCommenter       Role = "commenter"
	RoleMerger          Role = "merger"
)

// Participants maps roles to the logins that must appear in them. A PR
// passes when any (role, login) pair matches.
type Participants map[Role][]string

// Empty reports whether no participant constraint is set.
func (p Participants) Empty() bool {
	for _, logins := range p {
		if len(logins) > 0 {
			return false
		}
	}
	return true
}

// Key renders the participants deterministically for cache fingerprints.
func (p Participants) Key() string {
	roles := make([]string, 0, len(p))
	for r := range p {
		roles = append(roles, string(r))
	}
	sort.Strings(roles)
	var sb []byte
	for _, r := range roles {
		logins := append([]string(nil), p[Role(r)]...)
		sort.Strings(logins)
		sb = append(sb, r...)
		sb = append(sb, '=')
		for _, l := range logins {
			sb = append(sb, l...)
			sb = append(sb, ',')
		}
		sb = append(sb, ';')
	}
	return string(sb)
}

// Options scope one mining call.
type Options struct {
	Account         int64
	From, To        time.Time
	Repositories    []string
	Participants    Participants
	Labels          LabelFilter
	Blacklist       map[int64]struct{} // PR node ids to skip
	ExcludeInactive bool
}

func (o Options) blacklisted(nodeID int64) bool {
	_, ok := o.Blacklist[nodeID]
	return ok
}
