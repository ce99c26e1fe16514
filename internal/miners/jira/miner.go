// Package jira mines issue facts for the jira metric family and probes the
// account's JIRA installation during heating.
package jira

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gojira "github.com/andygrunwald/go-jira"

	"github.com/shipfacts/shipfacts/internal/dbgate"
	"github.com/shipfacts/shipfacts/internal/errors"
	"github.com/shipfacts/shipfacts/internal/models"
)

// Miner loads issue rows from the metadata store's JIRA schema, scoped to the
// team members mapped to JIRA users in the state store.
type Miner struct {
	mdb    *dbgate.Pool
	sdb    *dbgate.SQLStore
	logger *slog.Logger
}

// NewMiner wires the JIRA miner.
func NewMiner(mdb *dbgate.Pool, sdb *dbgate.SQLStore) *Miner {
	return &Miner{
		mdb:    mdb,
		sdb:    sdb,
		logger: slog.Default().With("component", "jira-miner"),
	}
}

// MapMembers resolves GitHub user node ids to JIRA user ids through the
// account's mapping table. Unmapped members are dropped.
func (m *Miner) MapMembers(ctx context.Context, account int64, members []int64) ([]string, error) {
	if len(members) == 0 {
		return nil, nil
	}
	var rows []struct {
		JIRAUserID string `db:"jira_user_id"`
	}
	query, args, err := dbgate.In(`
		SELECT jira_user_id FROM jira_identity_mapping
		WHERE account_id = ? AND github_user_id IN (?)`, account, members)
	if err != nil {
		return nil, fmt.Errorf("failed to build identity mapping query: %w", err)
	}
	if err := m.sdb.Select(ctx, &rows, query, args...); err != nil {
		return nil, errors.Unavailable(err, "JIRA identity mapping fetch failed")
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.JIRAUserID)
	}
	return out, nil
}

// MineIssues loads the issues assigned to the given JIRA users that were
// created before the window end and either unresolved or resolved after the
// window start. An account without an installation yields no issues.
func (m *Miner) MineIssues(ctx context.Context, account int64, assignees []string, from, to time.Time) ([]*models.JIRAIssue, error) {
	if len(assignees) == 0 {
		return nil, nil
	}
	rows, err := m.mdb.Query(ctx, `
		SELECT id, key, project_id, type, priority, assignee_id, reporter_id,
		       created_at, acknowledged_at, resolved_at
		FROM jira.issues
		WHERE acc_id = $1 AND assignee_id = ANY($2)
		  AND created_at < $3
		  AND (resolved_at IS NULL OR resolved_at >= $4)`,
		account, assignees, to, from)
	if err != nil {
		return nil, errors.Unavailable(err, "JIRA issue fetch failed")
	}
	defer rows.Close()
	var out []*models.JIRAIssue
	for rows.Next() {
		i := &models.JIRAIssue{}
		if err := rows.Scan(&i.ID, &i.Key, &i.ProjectID, &i.Type, &i.Priority,
			&i.AssigneeID, &i.ReporterID, &i.CreatedAt, &i.AcknowledgedAt, &i.ResolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan JIRA issue: %w", err)
		}
		out = append(out, i)
	}
	m.logger.Debug("mined JIRA issues", "account", account, "issues", len(out))
	return out, rows.Err()
}

// ProbeInstallation verifies that the account's JIRA base URL answers
// authenticated requests. The heater calls this once per account; a missing
// installation is not an error, it just disables the jira metric family.
func ProbeInstallation(ctx context.Context, baseURL, user, token string) (bool, error) {
	if baseURL == "" {
		return false, nil
	}
	transport := gojira.BasicAuthTransport{Username: user, Password: token}
	client, err := gojira.NewClient(transport.Client(), baseURL)
	if err != nil {
		return false, fmt.Errorf("failed to build JIRA client for %s: %w", baseURL, err)
	}
	me, _, err := client.User.GetSelfWithContext(ctx)
	if err != nil {
		return false, errors.Unavailable(err, "JIRA installation probe failed for %s", baseURL)
	}
	return me != nil, nil
}
