package slacknotify

import (
	"log/slog"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipfacts/shipfacts/internal/models"
)

type fakePoster struct {
	channels []string
	posts    int
}

func (f *fakePoster) PostMessage(channelID string, _ ...slack.MsgOption) (string, string, error) {
	f.channels = append(f.channels, channelID)
	f.posts++
	return channelID, "1", nil
}

func testNotifier(p poster) *Notifier {
	return &Notifier{client: p, channel: "C123", logger: slog.Default()}
}

func TestNilNotifierIsNoop(t *testing.T) {
	var n *Notifier
	n.AccountHeated(1, 2, 3, time.Minute)
	n.ExpiringAccounts([]*models.Account{{ID: 1}})
	assert.Nil(t, New("", "C123"))
	assert.Nil(t, New("xoxb-token", ""))
}

func TestAccountHeatedPosts(t *testing.T) {
	p := &fakePoster{}
	testNotifier(p).AccountHeated(42, 10, 500, 90*time.Second)
	require.Equal(t, 1, p.posts)
	assert.Equal(t, "C123", p.channels[0])
}

func TestExpiringAccountsSkipsEmpty(t *testing.T) {
	p := &fakePoster{}
	n := testNotifier(p)
	n.ExpiringAccounts(nil)
	assert.Zero(t, p.posts)
	n.ExpiringAccounts([]*models.Account{
		{ID: 7, ExpiresAt: time.Date(2024, 6, 2, 11, 30, 0, 0, time.UTC)},
	})
	assert.Equal(t, 1, p.posts)
}
