package heater

import (
	"context"
	"fmt"
	"time"

	"github.com/shipfacts/shipfacts/internal/dbgate"
	"github.com/shipfacts/shipfacts/internal/errors"
	"github.com/shipfacts/shipfacts/internal/models"
)

// fetchAccounts returns the active accounts, newest first, with their
// metadata installation ids attached.
func fetchAccounts(ctx context.Context, sdb *dbgate.SQLStore, now time.Time) ([]*models.Account, error) {
	var rows []struct {
		ID        int64     `db:"id"`
		CreatedAt time.Time `db:"created_at"`
		ExpiresAt time.Time `db:"expires_at"`
	}
	if err := sdb.Select(ctx, &rows,
		`SELECT id, created_at, expires_at FROM accounts
		 WHERE expires_at > ? AND deleted_at IS NULL
		 ORDER BY created_at DESC`, now); err != nil {
		return nil, fmt.Errorf("failed to fetch active accounts: %w", err)
	}
	accounts := make([]*models.Account, 0, len(rows))
	for _, row := range rows {
		accounts = append(accounts, &models.Account{
			ID:        row.ID,
			CreatedAt: row.CreatedAt,
			ExpiresAt: row.ExpiresAt,
		})
	}
	if err := loadMetaIDs(ctx, sdb, accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

func loadMetaIDs(ctx context.Context, sdb *dbgate.SQLStore, accounts []*models.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	byID := make(map[int64]*models.Account, len(accounts))
	ids := make([]int64, 0, len(accounts))
	for _, a := range accounts {
		byID[a.ID] = a
		ids = append(ids, a.ID)
	}
	var rows []struct {
		AccountID int64 `db:"account_id"`
		MetaID    int64 `db:"meta_id"`
	}
	query, args, err := dbgate.In(
		`SELECT account_id, meta_id FROM account_github_installations
		 WHERE account_id IN (?)`, ids)
	if err != nil {
		return fmt.Errorf("failed to build installations query: %w", err)
	}
	if err := sdb.Select(ctx, &rows, query, args...); err != nil {
		return fmt.Errorf("failed to fetch installations: %w", err)
	}
	for _, row := range rows {
		a := byID[row.AccountID]
		a.MetaIDs = append(a.MetaIDs, row.MetaID)
	}
	return nil
}

// jiraInstallation is the account's JIRA endpoint and service credentials.
type jiraInstallation struct {
	BaseURL string `db:"base_url"`
	User    string `db:"api_user"`
	Token   string `db:"api_token"`
}

// fetchJIRAInstallation returns the account's JIRA installation, or nil when
// none was ever connected.
func fetchJIRAInstallation(ctx context.Context, sdb *dbgate.SQLStore, account int64) (*jiraInstallation, error) {
	var rows []jiraInstallation
	if err := sdb.Select(ctx, &rows,
		`SELECT base_url, api_user, api_token FROM jira_installations
		 WHERE account_id = ?`, account); err != nil {
		return nil, fmt.Errorf("failed to fetch JIRA installation: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// expiringWithin returns the accounts whose expiry falls inside
// [now+after, now+before).
func expiringWithin(accounts []*models.Account, now time.Time, after, before time.Duration) []*models.Account {
	var out []*models.Account
	for _, a := range accounts {
		left := a.ExpiresAt.Sub(now)
		if left >= after && left < before {
			out = append(out, a)
		}
	}
	return out
}

// fetchReposet loads the root "all" repository set of an account with its
// ordered items.
func fetchReposet(ctx context.Context, sdb *dbgate.SQLStore, account int64) (*models.RepositorySet, error) {
	var rs models.RepositorySet
	err := sdb.Get(ctx, &rs,
		`SELECT id, owner_id, name, precomputed, updates_count, updated_at
		 FROM repository_sets WHERE owner_id = ? AND name = ?`,
		account, models.RepositorySetAll)
	if err != nil {
		return nil, errors.NotFound("account %d has no %q repository set: %v",
			account, models.RepositorySetAll, err)
	}
	var items []struct {
		FullName string `db:"full_name"`
		NodeID   int64  `db:"node_id"`
	}
	if err := sdb.Select(ctx, &items,
		`SELECT full_name, node_id FROM repository_set_items
		 WHERE reposet_id = ? ORDER BY position`, rs.ID); err != nil {
		return nil, fmt.Errorf("failed to fetch reposet items: %w", err)
	}
	for _, item := range items {
		rs.Items = append(rs.Items, item.FullName)
		rs.ItemNodeIDs = append(rs.ItemNodeIDs, item.NodeID)
	}
	return &rs, nil
}

// renameReposetItems applies refreshed repository names. Node ids are
// immutable, so the update keys on them.
func renameReposetItems(ctx context.Context, sdb *dbgate.SQLStore, rs *models.RepositorySet, fresh map[int64]string) error {
	for i, nodeID := range rs.ItemNodeIDs {
		name, ok := fresh[nodeID]
		if !ok || name == rs.Items[i] {
			continue
		}
		if _, err := sdb.Exec(ctx,
			`UPDATE repository_set_items SET full_name = ?
			 WHERE reposet_id = ? AND node_id = ?`,
			name, rs.ID, nodeID); err != nil {
			return fmt.Errorf("failed to rename repository %d: %w", nodeID, err)
		}
		rs.Items[i] = name
	}
	return nil
}

// markPrecomputed flips precomputed and bumps updates_count in one statement.
// Returns true when this call performed the flip, so the caller announces the
// first success exactly once.
func markPrecomputed(ctx context.Context, sdb *dbgate.SQLStore, reposetID int64) (bool, error) {
	affected, err := sdb.Exec(ctx,
		`UPDATE repository_sets
		 SET precomputed = ?, updates_count = updates_count + 1, updated_at = ?
		 WHERE id = ? AND NOT precomputed`,
		true, time.Now().UTC(), reposetID)
	if err != nil {
		return false, fmt.Errorf("failed to mark reposet %d precomputed: %w", reposetID, err)
	}
	return affected > 0, nil
}

// progressFinished reports whether every metadata installation of the account
// completed its initial fetch. Accounts still ingesting are skipped: their
// facts would be immediately stale.
func progressFinished(ctx context.Context, mdb *dbgate.Pool, metaIDs []int64) (bool, error) {
	if len(metaIDs) == 0 {
		return false, nil
	}
	var total, unfinished int64
	if err := mdb.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE finished_at IS NULL)
		 FROM github.fetch_progress WHERE acc_id = ANY($1)`,
		[]any{&total, &unfinished}, metaIDs); err != nil {
		return false, fmt.Errorf("failed to check fetch progress: %w", err)
	}
	return total > 0 && unfinished == 0, nil
}
