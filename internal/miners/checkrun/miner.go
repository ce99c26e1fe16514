package checkrun

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shipfacts/shipfacts/internal/dbgate"
	"github.com/shipfacts/shipfacts/internal/errors"
	"github.com/shipfacts/shipfacts/internal/miners/pr"
)

// Options scope one check-run mining call. JIRAKeys and Labels select runs
// through their attributed PR; either one set drops unattributed runs.
type Options struct {
	From, To     time.Time
	Repositories []string
	Pushers      []string // commit author logins; empty keeps all
	JIRAKeys     []string // keep only runs of PRs mapped to these issues
	Labels       pr.LabelFilter
}

// Miner builds normalized check-run tables from the metadata store.
type Miner struct {
	mdb    *dbgate.Pool
	logger *slog.Logger
	now    func() time.Time
}

// NewMiner wires the check-run miner.
func NewMiner(mdb *dbgate.Pool) *Miner {
	return &Miner{
		mdb:    mdb,
		logger: slog.Default().With("component", "checkrun-miner"),
		now:    time.Now,
	}
}

// Mine fetches the runs of the window (widened by out-of-window runs sharing
// an in-window PR) and normalizes them: suite starts, PR disambiguation,
// status-context merge, re-run split, duration clamping and suite-conclusion
// override. The PR-scoped JIRA and label filters apply last, after
// attribution settled.
func (m *Miner) Mine(ctx context.Context, opts Options) (*Table, error) {
	t, err := m.fetchWindow(ctx, opts)
	if err != nil {
		return nil, err
	}
	if t.Len() == 0 {
		return t, nil
	}
	if err := m.widen(ctx, t, opts); err != nil {
		return nil, err
	}
	prs, err := m.fetchPRInfo(ctx, t)
	if err != nil {
		return nil, err
	}
	computeSuiteStarts(t)
	disambiguate(t, prs, m.now().UTC())
	mergeStatusContexts(t)
	splitReRuns(t)
	clampDurations(t)
	overrideSuiteConclusions(t)
	if len(opts.JIRAKeys) > 0 || !opts.Labels.Empty() {
		scopes, err := m.fetchPRScopes(ctx, t)
		if err != nil {
			return nil, err
		}
		filterByPR(t, scopes, opts.JIRAKeys, opts.Labels)
	}
	m.logger.Debug("mined check runs", "rows", t.Len())
	return t, nil
}

func (m *Miner) fetchWindow(ctx context.Context, opts Options) (*Table, error) {
	query := `
		SELECT check_run_node_id, check_suite_node_id, repository_full_name, name,
		       status, conclusion, check_suite_conclusion,
		       started_at, completed_at, commit_node_id, pull_request_node_id,
		       author_login, url, is_status_context
		FROM github.check_runs
		WHERE repository_full_name = ANY($1)
		  AND started_at >= $2 AND started_at < $3`
	args := []any{opts.Repositories, opts.From, opts.To}
	if len(opts.Pushers) > 0 {
		query += ` AND author_login = ANY($4)`
		args = append(args, opts.Pushers)
	}
	return m.scanRuns(ctx, query, args...)
}

// widen pulls the out-of-window runs that share a PR with the in-window set,
// so PR timelines are never truncated at the window edges.
func (m *Miner) widen(ctx context.Context, t *Table, opts Options) error {
	prIDs := map[int64]bool{}
	for i := 0; i < t.Len(); i++ {
		if t.PRNodeID[i] != 0 {
			prIDs[t.PRNodeID[i]] = true
		}
	}
	if len(prIDs) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(prIDs))
	for id := range prIDs {
		ids = append(ids, id)
	}
	extra, err := m.scanRuns(ctx, `
		SELECT check_run_node_id, check_suite_node_id, repository_full_name, name,
		       status, conclusion, check_suite_conclusion,
		       started_at, completed_at, commit_node_id, pull_request_node_id,
		       author_login, url, is_status_context
		FROM github.check_runs
		WHERE pull_request_node_id = ANY($1)
		  AND (started_at < $2 OR started_at >= $3)`,
		ids, opts.From, opts.To)
	if err != nil {
		return err
	}
	for i := 0; i < extra.Len(); i++ {
		t.Append(extra.Row(i))
	}
	return nil
}

func (m *Miner) scanRuns(ctx context.Context, query string, args ...any) (*Table, error) {
	rows, err := m.mdb.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Unavailable(err, "check run fetch failed")
	}
	defer rows.Close()
	t := &Table{}
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.CheckRunNodeID, &r.SuiteID, &r.Repository, &r.Name,
			&r.Status, &r.Conclusion, &r.SuiteConclusion,
			&r.StartedAt, &r.CompletedAt, &r.CommitNodeID, &r.PRNodeID,
			&r.AuthorLogin, &r.URL, &r.StatusContext); err != nil {
			return nil, fmt.Errorf("failed to scan check run: %w", err)
		}
		t.Append(r)
	}
	return t, rows.Err()
}

func (m *Miner) fetchPRInfo(ctx context.Context, t *Table) (map[int64]prInfo, error) {
	ids := map[int64]bool{}
	for i := 0; i < t.Len(); i++ {
		if t.PRNodeID[i] != 0 {
			ids[t.PRNodeID[i]] = true
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	list := make([]int64, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	rows, err := m.mdb.Query(ctx, `
		SELECT p.node_id, p.author_login, p.created_at, p.closed_at,
		       (SELECT COUNT(*) FROM github.pull_request_commits c
		        WHERE c.pull_request_node_id = p.node_id)
		FROM github.pull_requests p WHERE p.node_id = ANY($1)`, list)
	if err != nil {
		return nil, errors.Unavailable(err, "check run PR info fetch failed")
	}
	defer rows.Close()
	out := map[int64]prInfo{}
	for rows.Next() {
		var info prInfo
		if err := rows.Scan(&info.NodeID, &info.Author, &info.CreatedAt, &info.ClosedAt, &info.Commits); err != nil {
			return nil, fmt.Errorf("failed to scan check run PR info: %w", err)
		}
		out[info.NodeID] = info
	}
	return out, rows.Err()
}
