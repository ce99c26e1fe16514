// Package pr mines pull request timelines from the metadata store and derives
// the lifecycle facts consumed by the metric calculators.
package pr

import (
	"context"
	"log/slog"

	"github.com/shipfacts/shipfacts/internal/cache"
	"github.com/shipfacts/shipfacts/internal/dbgate"
	"github.com/shipfacts/shipfacts/internal/errors"
	"github.com/shipfacts/shipfacts/internal/models"
	"github.com/shipfacts/shipfacts/internal/prefixer"
)

// FactsFormatVersion stamps the packed facts payloads. Bump on any layout or
// semantics change; stale cache entries then read as misses.
const FactsFormatVersion = 4

const cacheTopic = "pr_facts"

// Miner mines PR bundles and facts for one account at a time.
type Miner struct {
	mdb      *dbgate.Pool
	pdb      *dbgate.Pool
	facts    *cache.FactCache
	settings *prefixer.ReleaseSettings
	logger   *slog.Logger
}

// NewMiner wires the miner to its stores. settings scope the release
// attribution and become part of every cache fingerprint.
func NewMiner(mdb, pdb *dbgate.Pool, facts *cache.FactCache, settings *prefixer.ReleaseSettings) *Miner {
	return &Miner{
		mdb:      mdb,
		pdb:      pdb,
		facts:    facts,
		settings: settings,
		logger:   slog.Default().With("component", "pr-miner"),
	}
}

// MineBundles fetches candidate PRs and their associated events, derives the
// facts, and applies the deferred label and participant filters. Results are
// not cached; use MineFacts on the hot path.
func (m *Miner) MineBundles(ctx context.Context, opts Options) ([]*Bundle, error) {
	prs, err := fetchPullRequests(ctx, m.mdb, opts)
	if err != nil {
		return nil, errors.Unavailable(err, "pull request candidate fetch failed")
	}
	if len(prs) == 0 {
		return nil, nil
	}
	ids := make([]int64, len(prs))
	for i, p := range prs {
		ids[i] = p.NodeID
	}
	reviews, err := fetchReviews(ctx, m.mdb, ids)
	if err != nil {
		return nil, errors.Unavailable(err, "review fetch failed")
	}
	requests, err := fetchReviewRequests(ctx, m.mdb, ids)
	if err != nil {
		return nil, errors.Unavailable(err, "review request fetch failed")
	}
	comments, err := fetchComments(ctx, m.mdb, ids)
	if err != nil {
		return nil, errors.Unavailable(err, "comment fetch failed")
	}
	commits, err := fetchCommits(ctx, m.mdb, ids)
	if err != nil {
		return nil, errors.Unavailable(err, "commit fetch failed")
	}
	labels, err := fetchLabels(ctx, m.mdb, ids)
	if err != nil {
		return nil, errors.Unavailable(err, "label fetch failed")
	}
	releases, err := fetchReleaseLinks(ctx, m.pdb, ids)
	if err != nil {
		return nil, errors.Unavailable(err, "release link fetch failed")
	}
	jiraIDs, err := fetchJIRAIDs(ctx, m.mdb, ids)
	if err != nil {
		return nil, errors.Unavailable(err, "JIRA link fetch failed")
	}

	bundles := make([]*Bundle, 0, len(prs))
	for _, p := range prs {
		b := &Bundle{
			PR:             p,
			Reviews:        reviews[p.NodeID],
			ReviewRequests: requests[p.NodeID],
			Comments:       comments[p.NodeID],
			Commits:        commits[p.NodeID],
			Labels:         labels[p.NodeID],
			JIRAIDs:        jiraIDs[p.NodeID],
			ReleaseMatch:   m.settings.For(p.RepositoryFullName).Match,
		}
		if link, ok := releases[p.NodeID]; ok && p.MergedAt != nil {
			t := link.releasedAt
			b.ReleasedAt = &t
			b.ReleaserLogin = link.releaser
			b.ReleaseMatch = link.match
		}
		facts, err := DeriveFacts(b)
		if err != nil {
			m.logger.Warn("dropping inconsistent pull request", "pr", p.NodeID, "error", err)
			continue
		}
		b.Facts = facts
		bundles = append(bundles, b)
	}

	bundles = filterParticipants(bundles, opts.Participants)
	if !opts.Labels.Empty() {
		kept := bundles[:0]
		for _, b := range bundles {
			if opts.Labels.Match(b.Facts.Labels) {
				kept = append(kept, b)
			}
		}
		bundles = kept
	}
	if opts.ExcludeInactive {
		kept := bundles[:0]
		for _, b := range bundles {
			if activeIn(b.Facts, opts.From, opts.To) {
				kept = append(kept, b)
			}
		}
		bundles = kept
	}
	m.logger.Debug("mined pull requests", "candidates", len(prs), "kept", len(bundles))
	return bundles, nil
}

// MineFacts returns the facts for the options tuple, served from the fact
// cache when the fingerprint matches.
func (m *Miner) MineFacts(ctx context.Context, opts Options) ([]*models.PullRequestFacts, error) {
	fp := m.fingerprint(opts)
	payload, err := m.facts.Do(ctx, fp, func(ctx context.Context) ([]byte, error) {
		bundles, err := m.MineBundles(ctx, opts)
		if err != nil {
			return nil, err
		}
		facts := make([]*models.PullRequestFacts, len(bundles))
		for i, b := range bundles {
			facts[i] = b.Facts
		}
		return EncodeFactsList(facts), nil
	})
	if err != nil {
		return nil, err
	}
	facts, err := DecodeFactsList(payload)
	if err != nil {
		return nil, errors.Internal(err, "corrupt cached pull request facts")
	}
	return facts, nil
}

func (m *Miner) fingerprint(opts Options) cache.Fingerprint {
	b := cache.NewFingerprint(cacheTopic, FactsFormatVersion).
		Int64(opts.Account).
		Time(opts.From).
		Time(opts.To).
		Strings(opts.Repositories).
		String(opts.Participants.Key()).
		String(opts.Labels.Key()).
		Map(m.settings.FingerprintMap(opts.Repositories))
	blacklist := make([]int64, 0, len(opts.Blacklist))
	for id := range opts.Blacklist {
		blacklist = append(blacklist, id)
	}
	b.Int64s(blacklist)
	if opts.ExcludeInactive {
		b.String("exclude_inactive")
	}
	return b.Done()
}

// filterParticipants keeps the bundles where any requested (role, login) pair
// is present.
func filterParticipants(bundles []*Bundle, parts Participants) []*Bundle {
	if parts.Empty() {
		return bundles
	}
	want := make(map[Role]map[string]bool, len(parts))
	for role, logins := range parts {
		set := make(map[string]bool, len(logins))
		for _, l := range logins {
			set[l] = true
		}
		want[role] = set
	}
	anyKey := func(set map[string]bool, m map[string]string) bool {
		for k := range m {
			if set[k] {
				return true
			}
		}
		return false
	}
	kept := bundles[:0]
	for _, b := range bundles {
		f := b.Facts
		match := false
		for role, set := range want {
			switch role {
			case RoleAuthor:
				match = set[f.Author]
			case RoleMerger:
				match = set[f.Merger]
			case RoleReviewer:
				match = anyKey(set, f.Reviewers)
			case RoleCommenter:
				match = anyKey(set, f.Commenters)
			case RoleCommitAuthor:
				match = anyKey(set, f.CommitAuthors)
			case RoleCommitCommitter:
				match = anyKey(set, f.CommitCommitters)
			}
			if match {
				break
			}
		}
		if match {
			kept = append(kept, b)
		}
	}
	return kept
}
