package pr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipfacts/shipfacts/internal/models"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func tsp(s string) *time.Time {
	t := ts(s)
	return &t
}

func reviewedBundle() *Bundle {
	return &Bundle{
		PR: models.PullRequest{
			NodeID:             1,
			RepositoryFullName: "acme/api",
			AuthorLogin:        "alice",
			MergedByLogin:      "bob",
			CreatedAt:          ts("2023-03-02T10:00:00Z"),
			MergedAt:           tsp("2023-03-05T10:00:00Z"),
			ClosedAt:           tsp("2023-03-05T10:00:00Z"),
			Merged:             true,
		},
		Commits: []models.PRCommit{
			{SHA: "a", AuthorLogin: "alice", CommitterLogin: "alice",
				AuthoredAt: ts("2023-03-01T09:00:00Z"), CommittedAt: ts("2023-03-01T09:00:00Z")},
			{SHA: "b", AuthorLogin: "alice", CommitterLogin: "alice",
				AuthoredAt: ts("2023-03-02T12:00:00Z"), CommittedAt: ts("2023-03-02T12:00:00Z")},
		},
		ReviewRequests: []models.PRReviewRequest{
			{RequestedAt: ts("2023-03-03T10:00:00Z")},
		},
		Reviews: []models.PRReview{
			{UserLogin: "bob", UserNodeID: 7, State: "COMMENTED", SubmittedAt: ts("2023-03-03T12:00:00Z")},
			{UserLogin: "bob", UserNodeID: 7, State: models.ReviewStateApproved, SubmittedAt: ts("2023-03-04T10:00:00Z")},
		},
		Comments: []models.PRComment{
			{UserLogin: "carol", UserNodeID: 8, CreatedAt: ts("2023-03-03T11:00:00Z"), InReview: true},
		},
		Labels: []models.PRLabel{{Name: "Bug"}},
	}
}

func TestDeriveFactsTimeline(t *testing.T) {
	f, err := DeriveFacts(reviewedBundle())
	require.NoError(t, err)

	// work began at the first commit, before the PR was opened
	assert.Equal(t, ts("2023-03-01T09:00:00Z"), f.WorkBegan())
	assert.Equal(t, tsp("2023-03-03T10:00:00Z"), f.FirstReviewRequest)
	assert.Equal(t, tsp("2023-03-03T11:00:00Z"), f.FirstCommentOnFirstReview)
	assert.Equal(t, tsp("2023-03-04T10:00:00Z"), f.Approved)
	assert.Equal(t, tsp("2023-03-04T10:00:00Z"), f.LastReview)
	assert.Equal(t, tsp("2023-03-02T12:00:00Z"), f.LastCommitBeforeFirstReview)
	assert.Nil(t, f.Released)
	assert.False(t, f.Done())
	assert.Equal(t, map[string]string{"bob": "7"}, f.Reviewers)
	assert.Equal(t, map[string]string{"carol": "8"}, f.Commenters)
	assert.Contains(t, f.Labels, "Bug")
}

func TestDeriveFactsReviewAfterCloseIgnored(t *testing.T) {
	b := reviewedBundle()
	b.Reviews = append(b.Reviews, models.PRReview{
		UserLogin: "dave", State: models.ReviewStateApproved,
		SubmittedAt: ts("2023-03-06T10:00:00Z"),
	})
	f, err := DeriveFacts(b)
	require.NoError(t, err)
	assert.Equal(t, tsp("2023-03-04T10:00:00Z"), f.Approved)
	assert.NotContains(t, f.Reviewers, "dave")
}

func TestDeriveFactsReviewRequestAfterCloseIgnored(t *testing.T) {
	b := reviewedBundle()
	b.ReviewRequests = []models.PRReviewRequest{
		{RequestedAt: ts("2023-03-06T09:00:00Z")},
	}
	f, err := DeriveFacts(b)
	require.NoError(t, err)
	assert.Nil(t, f.FirstReviewRequest)
}

func TestDeriveFactsReleased(t *testing.T) {
	b := reviewedBundle()
	b.ReleasedAt = tsp("2023-03-10T00:00:00Z")
	b.ReleaserLogin = "bob"
	b.ReleaseMatch = models.ReleaseMatchTag
	f, err := DeriveFacts(b)
	require.NoError(t, err)
	assert.True(t, f.Done())
	assert.Equal(t, string(models.ReleaseMatchTag), f.ReleaseMatch)
	assert.Equal(t, tsp("2023-03-10T00:00:00Z"), f.Released)
}

func TestDeriveFactsNoReview(t *testing.T) {
	b := &Bundle{
		PR: models.PullRequest{
			NodeID:      2,
			AuthorLogin: "alice",
			CreatedAt:   ts("2023-03-02T10:00:00Z"),
		},
	}
	f, err := DeriveFacts(b)
	require.NoError(t, err)
	assert.Nil(t, f.FirstReviewRequest)
	assert.Nil(t, f.Approved)
	assert.Equal(t, b.PR.CreatedAt, f.WorkBegan())
}

func TestDeriveFactsRejectsReleaseBeforeMerge(t *testing.T) {
	b := reviewedBundle()
	b.ReleasedAt = tsp("2023-03-04T00:00:00Z") // precedes the merge
	_, err := DeriveFacts(b)
	assert.Error(t, err)
}

func TestActivityDays(t *testing.T) {
	f, err := DeriveFacts(reviewedBundle())
	require.NoError(t, err)
	want := []time.Time{
		ts("2023-03-01T00:00:00Z"),
		ts("2023-03-02T00:00:00Z"),
		ts("2023-03-03T00:00:00Z"),
		ts("2023-03-04T00:00:00Z"),
		ts("2023-03-05T00:00:00Z"),
	}
	assert.Equal(t, want, f.ActivityDays)
}

func TestActiveIn(t *testing.T) {
	f, err := DeriveFacts(reviewedBundle())
	require.NoError(t, err)
	assert.True(t, activeIn(f, ts("2023-03-04T00:00:00Z"), ts("2023-03-20T00:00:00Z")))
	assert.False(t, activeIn(f, ts("2023-04-01T00:00:00Z"), ts("2023-05-01T00:00:00Z")))
}

func TestFilterParticipants(t *testing.T) {
	b := reviewedBundle()
	f, err := DeriveFacts(b)
	require.NoError(t, err)
	b.Facts = f

	assert.Len(t, filterParticipants([]*Bundle{b}, Participants{RoleAuthor: {"alice"}}), 1)
	assert.Len(t, filterParticipants([]*Bundle{b}, Participants{RoleReviewer: {"bob"}}), 1)
	assert.Len(t, filterParticipants([]*Bundle{b}, Participants{RoleCommenter: {"carol"}}), 1)
	assert.Len(t, filterParticipants([]*Bundle{b}, Participants{RoleAuthor: {"zed"}}), 0)
	assert.Len(t, filterParticipants([]*Bundle{b}, Participants{}), 1)
}
