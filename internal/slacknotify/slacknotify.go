// Package slacknotify posts heater lifecycle notices to Slack: the first
// successful precompute of an account and upcoming trial expirations.
package slacknotify

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/slack-go/slack"

	"github.com/shipfacts/shipfacts/internal/models"
)

// poster is the subset of the Slack client the notifier calls.
type poster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// Notifier posts to a fixed channel. A nil Notifier is a no-op, so callers
// never need to branch on whether Slack is configured.
type Notifier struct {
	client  poster
	channel string
	logger  *slog.Logger
}

// New creates a notifier from a bot token and a channel id. Empty token
// disables posting.
func New(token, channel string) *Notifier {
	if token == "" || channel == "" {
		return nil
	}
	return &Notifier{
		client:  slack.New(token),
		channel: channel,
		logger:  slog.Default().With("component", "slacknotify"),
	}
}

// AccountHeated announces the first successful precompute of an account.
func (n *Notifier) AccountHeated(account int64, repos, prs int, elapsed time.Duration) {
	if n == nil {
		return
	}
	n.post(fmt.Sprintf(
		":rocket: account %d precomputed for the first time: %d repositories, %d pull requests in %s",
		account, repos, prs, elapsed.Round(time.Second)))
}

// ExpiringAccounts warns about accounts whose access lapses within the next
// day.
func (n *Notifier) ExpiringAccounts(accounts []*models.Account) {
	if n == nil || len(accounts) == 0 {
		return
	}
	msg := ":hourglass: accounts expiring within 24h:"
	for _, a := range accounts {
		msg += fmt.Sprintf("\n• account %d expires at %s", a.ID, a.ExpiresAt.UTC().Format(time.RFC3339))
	}
	n.post(msg)
}

func (n *Notifier) post(text string) {
	_, _, err := n.client.PostMessage(n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		n.logger.Warn("slack post failed", "error", err)
	}
}
