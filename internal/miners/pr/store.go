package pr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/shipfacts/shipfacts/internal/dbgate"
	"github.com/shipfacts/shipfacts/internal/models"
)

// Category is the durable bucket a facts row lives in. A PR moves
// open → merged → done as its lifecycle progresses; promotion deletes the row
// from the previous bucket.
type Category string

const (
	CategoryOpen   Category = "open"
	CategoryMerged Category = "merged"
	CategoryDone   Category = "done"
)

func categoryOf(f *models.PullRequestFacts) Category {
	if f.Done() {
		return CategoryDone
	}
	if f.Merged != nil {
		return CategoryMerged
	}
	return CategoryOpen
}

func tableOf(c Category) string {
	return "pull_request_facts_" + string(c)
}

// Store persists derived facts in the precomputed store, keyed by
// (pr_node_id, release_match, format_version). Labels and activity days are
// structured columns because the heater queries them without decoding the
// payload.
type Store struct {
	pdb           *dbgate.Pool
	formatVersion int
	logger        *slog.Logger
}

// NewStore binds the facts store to the precomputed pool.
func NewStore(pdb *dbgate.Pool) *Store {
	return &Store{
		pdb:           pdb,
		formatVersion: FactsFormatVersion,
		logger:        slog.Default().With("component", "pr-facts-store"),
	}
}

// Save upserts the facts rows into their category tables and removes stale
// rows from the categories each PR outgrew.
func (s *Store) Save(ctx context.Context, account int64, facts []*models.PullRequestFacts) error {
	for _, f := range facts {
		cat := categoryOf(f)
		doneAt := f.Closed
		if f.Released != nil {
			doneAt = f.Released
		}
		_, err := s.pdb.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (account_id, pr_node_id, release_match, format_version,
			                repository_full_name, pr_created_at, pr_done_at,
			                author, merger, releaser,
			                reviewers, commenters, commit_authors, commit_committers,
			                labels, activity_days, data, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			        $11, $12, $13, $14, $15, $16, $17, NOW())
			ON CONFLICT (pr_node_id, release_match, format_version)
			DO UPDATE SET repository_full_name = EXCLUDED.repository_full_name,
			              pr_created_at = EXCLUDED.pr_created_at,
			              pr_done_at = EXCLUDED.pr_done_at,
			              author = EXCLUDED.author,
			              merger = EXCLUDED.merger,
			              releaser = EXCLUDED.releaser,
			              reviewers = EXCLUDED.reviewers,
			              commenters = EXCLUDED.commenters,
			              commit_authors = EXCLUDED.commit_authors,
			              commit_committers = EXCLUDED.commit_committers,
			              labels = EXCLUDED.labels,
			              activity_days = EXCLUDED.activity_days,
			              data = EXCLUDED.data,
			              updated_at = NOW()`, tableOf(cat)),
			account, f.PRNodeID, f.ReleaseMatch, s.formatVersion,
			f.RepositoryFullName, f.Created, doneAt,
			f.Author, f.Merger, f.Releaser,
			toHstore(f.Reviewers), toHstore(f.Commenters),
			toHstore(f.CommitAuthors), toHstore(f.CommitCommitters),
			toHstore(f.Labels), f.ActivityDays, EncodeFacts(f))
		if err != nil {
			return fmt.Errorf("failed to save facts of PR %d: %w", f.PRNodeID, err)
		}
		for _, stale := range staleCategories(cat) {
			if _, err := s.pdb.Exec(ctx, fmt.Sprintf(
				`DELETE FROM %s WHERE pr_node_id = $1 AND release_match = $2 AND format_version = $3`,
				tableOf(stale)),
				f.PRNodeID, f.ReleaseMatch, s.formatVersion); err != nil {
				return fmt.Errorf("failed to promote facts of PR %d: %w", f.PRNodeID, err)
			}
		}
	}
	return nil
}

func staleCategories(c Category) []Category {
	switch c {
	case CategoryDone:
		return []Category{CategoryOpen, CategoryMerged}
	case CategoryMerged:
		return []Category{CategoryOpen}
	default:
		return nil
	}
}

// Load reads the facts of a category whose PRs touch [from, to).
func (s *Store) Load(ctx context.Context, cat Category, account int64, repos []string, from, to time.Time) ([]*models.PullRequestFacts, error) {
	rows, err := s.pdb.Query(ctx, fmt.Sprintf(`
		SELECT data FROM %s
		WHERE account_id = $1 AND format_version = $2
		  AND repository_full_name = ANY($3)
		  AND pr_created_at < $4
		  AND (pr_done_at IS NULL OR pr_done_at >= $5)`, tableOf(cat)),
		account, s.formatVersion, repos, to, from)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s facts: %w", cat, err)
	}
	defer rows.Close()
	var facts []*models.PullRequestFacts
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan facts payload: %w", err)
		}
		f, err := DecodeFacts(data)
		if err != nil {
			return nil, fmt.Errorf("corrupt %s facts payload: %w", cat, err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// StoredLabels is one row of the label-sync scan.
type StoredLabels struct {
	Category     Category
	PRNodeID     int64
	ReleaseMatch string
	Labels       map[string]string
}

// ScanLabels streams the stored label maps of every facts row for an account.
func (s *Store) ScanLabels(ctx context.Context, account int64, fn func(StoredLabels) error) error {
	for _, cat := range []Category{CategoryOpen, CategoryMerged, CategoryDone} {
		rows, err := s.pdb.Query(ctx, fmt.Sprintf(
			`SELECT pr_node_id, release_match, labels FROM %s
			 WHERE account_id = $1 AND format_version = $2`, tableOf(cat)),
			account, s.formatVersion)
		if err != nil {
			return fmt.Errorf("failed to scan %s labels: %w", cat, err)
		}
		err = func() error {
			defer rows.Close()
			for rows.Next() {
				var row StoredLabels
				var labels pgtype.Hstore
				if err := rows.Scan(&row.PRNodeID, &row.ReleaseMatch, &labels); err != nil {
					return fmt.Errorf("failed to scan labels row: %w", err)
				}
				row.Category = cat
				row.Labels = fromHstore(labels)
				if err := fn(row); err != nil {
					return err
				}
			}
			return rows.Err()
		}()
		if err != nil {
			return err
		}
	}
	return nil
}

// UpdateLabels rewrites the label map of one facts row.
func (s *Store) UpdateLabels(ctx context.Context, row StoredLabels, labels map[string]string) error {
	_, err := s.pdb.Exec(ctx, fmt.Sprintf(
		`UPDATE %s SET labels = $1, updated_at = NOW()
		 WHERE pr_node_id = $2 AND release_match = $3 AND format_version = $4`,
		tableOf(row.Category)),
		toHstore(labels), row.PRNodeID, row.ReleaseMatch, s.formatVersion)
	if err != nil {
		return fmt.Errorf("failed to update labels of PR %d: %w", row.PRNodeID, err)
	}
	return nil
}

// FoldLabels lower-cases a label map for comparison during sync.
func FoldLabels(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[strings.ToLower(k)] = v
	}
	return out
}

func toHstore(m map[string]string) pgtype.Hstore {
	h := make(pgtype.Hstore, len(m))
	for k, v := range m {
		v := v
		h[k] = &v
	}
	return h
}

func fromHstore(h pgtype.Hstore) map[string]string {
	m := make(map[string]string, len(h))
	for k, v := range h {
		if v != nil {
			m[k] = *v
		} else {
			m[k] = ""
		}
	}
	return m
}
