// Package heater drives the mining pipeline for every active account so the
// precomputed store and the fact cache stay warm. It is a batch process:
// failures are recorded per account and never stop the loop.
package heater

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/shipfacts/shipfacts/internal/cache"
	"github.com/shipfacts/shipfacts/internal/config"
	"github.com/shipfacts/shipfacts/internal/dbgate"
	"github.com/shipfacts/shipfacts/internal/githubapi"
	"github.com/shipfacts/shipfacts/internal/miners/jira"
	"github.com/shipfacts/shipfacts/internal/miners/pr"
	"github.com/shipfacts/shipfacts/internal/miners/release"
	"github.com/shipfacts/shipfacts/internal/models"
	"github.com/shipfacts/shipfacts/internal/prefixer"
	"github.com/shipfacts/shipfacts/internal/slacknotify"
)

// Heating steps recorded in the checkpoint file.
const (
	stepLabels      = "labels"
	stepBranches    = "branches"
	stepReleases    = "releases"
	stepFacts       = "facts"
	stepDeployments = "deployments"
	stepBots        = "bots"
)

// fullHistoryStart bounds "full history" mining; there is no older metadata.
var fullHistoryStart = time.Date(2008, time.January, 1, 0, 0, 0, 0, time.UTC)

// Heater runs the per-account mining loop.
type Heater struct {
	gw     *dbgate.Gateway
	github *githubapi.Client // nil disables the name refresh
	slack  *slacknotify.Notifier
	ck     *Checkpoints
	front  *cache.Client // optional short-term tier for mined facts
	cfg    config.HeaterConfig
	logger *logrus.Logger
	now    func() time.Time
}

// New wires a heater.
func New(gw *dbgate.Gateway, gh *githubapi.Client, slack *slacknotify.Notifier,
	ck *Checkpoints, cfg config.HeaterConfig, logger *logrus.Logger) *Heater {
	return &Heater{
		gw:     gw,
		github: gh,
		slack:  slack,
		ck:     ck,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// WithCache attaches the short-term cache tier so freshly mined facts are
// immediately servable without touching the precomputed store.
func (h *Heater) WithCache(front *cache.Client) *Heater {
	h.front = front
	return h
}

// Run heats every active account once and returns how many failed.
func (h *Heater) Run(ctx context.Context) (int, error) {
	now := h.now().UTC()
	round := now.Format(time.DateOnly)
	accounts, err := fetchAccounts(ctx, h.gw.State, now)
	if err != nil {
		return 0, err
	}
	h.logger.WithField("accounts", len(accounts)).Info("heating round started")

	h.slack.ExpiringAccounts(expiringWithin(accounts, now, 23*time.Hour, 24*time.Hour))

	failed := 0
	for _, account := range accounts {
		if ctx.Err() != nil {
			return failed, ctx.Err()
		}
		log := h.logger.WithField("account", account.ID)
		ready, err := progressFinished(ctx, h.gw.Metadata, account.MetaIDs)
		if err != nil {
			log.WithError(err).Error("progress check failed")
			failed++
			continue
		}
		if !ready {
			log.Info("metadata ingestion unfinished, skipping")
			continue
		}
		if err := h.heatAccount(ctx, account, round); err != nil {
			log.WithError(err).Error("account heating failed")
			failed++
			continue
		}
		log.Info("account heated")
	}
	return failed, nil
}

func (h *Heater) heatAccount(ctx context.Context, account *models.Account, round string) error {
	started := h.now()
	log := h.logger.WithField("account", account.ID)

	reposet, err := fetchReposet(ctx, h.gw.State, account.ID)
	if err != nil {
		return err
	}
	if h.github != nil {
		known := make(map[int64]string, len(reposet.Items))
		for i, id := range reposet.ItemNodeIDs {
			known[id] = reposet.Items[i]
		}
		fresh, err := h.github.RefreshNames(ctx, known)
		if err != nil {
			return fmt.Errorf("repository name refresh failed: %w", err)
		}
		if err := renameReposetItems(ctx, h.gw.State, reposet, fresh); err != nil {
			return err
		}
	}

	pfx, err := prefixer.Load(ctx, h.gw.Metadata, account.MetaIDs)
	if err != nil {
		return err
	}
	settings, err := prefixer.LoadReleaseSettings(ctx, h.gw.State, account.ID, reposet.Items)
	if err != nil {
		return err
	}
	if h.cfg.ReleaseSettingsPath != "" {
		overrides, err := prefixer.LoadReleaseSettingsFile(h.cfg.ReleaseSettingsPath)
		if err != nil {
			return err
		}
		for _, repo := range reposet.Items {
			if rule, ok := overrides[repo]; ok {
				settings.Set(repo, rule)
			}
		}
	}
	if inst, err := fetchJIRAInstallation(ctx, h.gw.State, account.ID); err != nil {
		return err
	} else if inst != nil {
		ok, err := jira.ProbeInstallation(ctx, inst.BaseURL, inst.User, inst.Token)
		if err != nil {
			log.WithError(err).Warn("JIRA installation unreachable")
		} else if ok {
			log.WithField("jira", inst.BaseURL).Debug("JIRA installation verified")
		}
	}

	store := pr.NewStore(h.gw.Precomputed)

	if !h.ck.IsDone(account.ID, round, stepLabels) {
		updated, err := syncLabels(ctx, store,
			fetchMetadataLabels(h.gw.Metadata, account.MetaIDs),
			account.ID, h.cfg.LabelSyncBatch)
		if err != nil {
			return fmt.Errorf("label sync failed: %w", err)
		}
		log.WithField("updated", updated).Debug("labels synced")
		if err := h.ck.MarkDone(account.ID, round, stepLabels); err != nil {
			return err
		}
	}

	if !h.ck.IsDone(account.ID, round, stepBranches) {
		branches, err := h.extractBranches(ctx, account, reposet.Items, settings)
		if err != nil {
			return fmt.Errorf("branch extraction failed: %w", err)
		}
		log.WithField("branches", branches).Debug("branches extracted")
		if err := h.ck.MarkDone(account.ID, round, stepBranches); err != nil {
			return err
		}
	}

	relMiner := release.NewMiner(h.gw.Metadata, h.gw.Precomputed, h.gw.Events, settings)
	if !h.ck.IsDone(account.ID, round, stepReleases) {
		if _, err := relMiner.Mine(ctx, account.ID, reposet.Items, fullHistoryStart, h.now()); err != nil {
			return fmt.Errorf("release mining failed: %w", err)
		}
		firsts, err := relMiner.DiscoverFirstReleases(ctx, account.ID, reposet.Items)
		if err != nil {
			return fmt.Errorf("first release discovery failed: %w", err)
		}
		hidden, err := relMiner.HideFirstReleases(ctx, h.gw.Precomputed, firsts)
		if err != nil {
			return fmt.Errorf("first release hiding failed: %w", err)
		}
		log.WithField("hidden", hidden).Debug("first releases hidden")
		if err := h.ck.MarkDone(account.ID, round, stepReleases); err != nil {
			return err
		}
	}

	minedPRs := 0
	if !h.ck.IsDone(account.ID, round, stepFacts) {
		factCache := cache.NewFactCache(h.gw.Precomputed, pr.FactsFormatVersion)
		if h.front != nil {
			factCache = factCache.WithFront(h.front)
		}
		miner := pr.NewMiner(h.gw.Metadata, h.gw.Precomputed, factCache, settings)
		from := h.now().AddDate(-h.cfg.MiningYears, 0, 0)
		if os.Getenv("CI") != "" {
			from = fullHistoryStart
		}
		facts, err := miner.MineFacts(ctx, pr.Options{
			Account:      account.ID,
			From:         from,
			To:           h.now(),
			Repositories: reposet.Items,
		})
		if err != nil {
			return fmt.Errorf("PR facts mining failed: %w", err)
		}
		if err := store.Save(ctx, account.ID, facts); err != nil {
			return fmt.Errorf("PR facts persisting failed: %w", err)
		}
		minedPRs = len(facts)
		log.WithField("prs", minedPRs).Debug("PR facts mined")
		if err := h.ck.MarkDone(account.ID, round, stepFacts); err != nil {
			return err
		}
	}

	if !h.ck.IsDone(account.ID, round, stepDeployments) {
		deployments, err := h.mineDeployments(ctx, account.ID)
		if err != nil {
			return fmt.Errorf("deployment mining failed: %w", err)
		}
		log.WithField("deployments", deployments).Debug("deployments mined")
		if err := h.ck.MarkDone(account.ID, round, stepDeployments); err != nil {
			return err
		}
	}

	if !h.ck.IsDone(account.ID, round, stepBots) {
		if err := h.ensureBotsTeam(ctx, account, pfx); err != nil {
			return fmt.Errorf("bots team creation failed: %w", err)
		}
		if err := h.ck.MarkDone(account.ID, round, stepBots); err != nil {
			return err
		}
	}

	first, err := markPrecomputed(ctx, h.gw.State, reposet.ID)
	if err != nil {
		return err
	}
	if first {
		h.slack.AccountHeated(account.ID, len(reposet.Items), minedPRs, h.now().Sub(started))
	}
	return nil
}

// extractBranches counts the known branches per repository and backfills the
// default branch into the release settings of repositories configured with
// the default alias.
func (h *Heater) extractBranches(ctx context.Context, account *models.Account, repos []string, settings *prefixer.ReleaseSettings) (int, error) {
	rows, err := h.gw.Metadata.Query(ctx,
		`SELECT repository_full_name, name, is_default FROM github.branches
		 WHERE acc_id = ANY($1) AND repository_full_name = ANY($2)`,
		account.MetaIDs, repos)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		var repo, name string
		var isDefault bool
		if err := rows.Scan(&repo, &name, &isDefault); err != nil {
			return 0, err
		}
		count++
		if !isDefault {
			continue
		}
		setting := settings.For(repo)
		if setting.BranchGlob == prefixer.DefaultBranchAlias {
			setting.BranchGlob = name
			settings.Set(repo, setting)
		}
	}
	return count, rows.Err()
}

// mineDeployments counts the finished deployment notifications of the account
// in the events store, which warms its indexes for the deployment filters.
func (h *Heater) mineDeployments(ctx context.Context, account int64) (int, error) {
	var rows []struct {
		Count int `db:"count"`
	}
	err := h.gw.Events.Select(ctx, &rows,
		`SELECT COUNT(*) AS count FROM deployment_notifications
		 WHERE account_id = ? AND finished_at IS NOT NULL`, account)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Count, nil
}

// ensureBotsTeam creates the reserved Bots team from the metadata store's bot
// users when the account does not have it yet.
func (h *Heater) ensureBotsTeam(ctx context.Context, account *models.Account, pfx *prefixer.Prefixer) error {
	var existing []struct {
		ID int64 `db:"id"`
	}
	if err := h.gw.State.Select(ctx, &existing,
		`SELECT id FROM teams WHERE owner_id = ? AND name = ?`,
		account.ID, models.TeamBots); err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	rows, err := h.gw.Metadata.Query(ctx,
		`SELECT node_id FROM github.users WHERE acc_id = ANY($1) AND type = 'BOT'`,
		account.MetaIDs)
	if err != nil {
		return err
	}
	defer rows.Close()
	var bots []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		bots = append(bots, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(bots) == 0 {
		return nil
	}
	return h.gw.State.Tx(ctx, func(tx *sqlx.Tx) error {
		var teamID int64
		if err := tx.GetContext(ctx, &teamID, tx.Rebind(
			`INSERT INTO teams (owner_id, name, parent_id)
			 VALUES (?, ?, NULL) RETURNING id`),
			account.ID, models.TeamBots); err != nil {
			return err
		}
		for _, bot := range bots {
			if _, err := tx.ExecContext(ctx, tx.Rebind(
				`INSERT INTO team_members (team_id, member_id) VALUES (?, ?)`),
				teamID, bot); err != nil {
				return err
			}
		}
		return nil
	})
}
