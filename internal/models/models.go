package models

import (
	"time"
)

// Account represents a tenant. Every query in the system is scoped to exactly
// one account; cross-account reads are forbidden by construction (all store
// queries filter on the account id).
type Account struct {
	ID        int64      `json:"id" db:"id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt time.Time  `json:"expires_at" db:"expires_at"`
	MetaIDs   []int64    `json:"meta_ids"`
	JIRAURL   *string    `json:"jira_url" db:"jira_url"`
	Features  []string   `json:"features"`
	DeletedAt *time.Time `json:"deleted_at" db:"deleted_at"`
}

// RepositorySet is the versioned, ordered list of repositories owned by an
// account. Item node ids are immutable; names may be refreshed from upstream.
type RepositorySet struct {
	ID           int64     `json:"id" db:"id"`
	OwnerID      int64     `json:"owner_id" db:"owner_id"`
	Name         string    `json:"name" db:"name"`
	Items        []string  `json:"items"`
	ItemNodeIDs  []int64   `json:"item_node_ids"`
	Precomputed  bool      `json:"precomputed" db:"precomputed"`
	UpdatesCount int       `json:"updates_count" db:"updates_count"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// RepositorySetAll is the reserved name of the root reposet of each account.
const RepositorySetAll = "all"

// Team is a node in the account's team tree. Members are user node ids.
type Team struct {
	ID       int64   `json:"id" db:"id"`
	OwnerID  int64   `json:"owner_id" db:"owner_id"`
	Name     string  `json:"name" db:"name"`
	ParentID *int64  `json:"parent_id" db:"parent_id"`
	Members  []int64 `json:"members"`
}

// TeamBots is the reserved name of the team gathering all the bots noticed in
// the account's repositories.
const TeamBots = "Bots"

// TeamTree is the recursive response shape for team-scoped metric values.
type TeamTree struct {
	ID       int64       `json:"id"`
	Name     string      `json:"name"`
	Members  []int64     `json:"members"`
	Children []*TeamTree `json:"children"`
}

// PullRequest mirrors the metadata store's pull request node.
type PullRequest struct {
	NodeID             int64      `json:"node_id" db:"node_id"`
	RepositoryNodeID   int64      `json:"repository_node_id" db:"repository_node_id"`
	RepositoryFullName string     `json:"repository_full_name" db:"repository_full_name"`
	Number             int        `json:"number" db:"number"`
	Title              string     `json:"title" db:"title"`
	AuthorNodeID       int64      `json:"author_node_id" db:"author_node_id"`
	AuthorLogin        string     `json:"author_login" db:"author_login"`
	MergedByLogin      string     `json:"merged_by_login" db:"merged_by_login"`
	Additions          int        `json:"additions" db:"additions"`
	Deletions          int        `json:"deletions" db:"deletions"`
	ChangedFiles       int        `json:"changed_files" db:"changed_files"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
	MergedAt           *time.Time `json:"merged_at" db:"merged_at"`
	ClosedAt           *time.Time `json:"closed_at" db:"closed_at"`
	Merged             bool       `json:"merged" db:"merged"`
}

// PRReview is a submitted pull request review.
type PRReview struct {
	PullRequestNodeID int64     `json:"pull_request_node_id" db:"pull_request_node_id"`
	UserNodeID        int64     `json:"user_node_id" db:"user_node_id"`
	UserLogin         string    `json:"user_login" db:"user_login"`
	State             string    `json:"state" db:"state"` // APPROVED, CHANGES_REQUESTED, COMMENTED
	SubmittedAt       time.Time `json:"submitted_at" db:"submitted_at"`
}

// ReviewStateApproved is the review state that resolves the approval stage.
const ReviewStateApproved = "APPROVED"

// PRReviewRequest records a requested reviewer on a PR.
type PRReviewRequest struct {
	PullRequestNodeID int64     `json:"pull_request_node_id" db:"pull_request_node_id"`
	RequestedAt       time.Time `json:"requested_at" db:"requested_at"`
}

// PRComment is an issue comment or a review comment on a PR.
type PRComment struct {
	PullRequestNodeID int64     `json:"pull_request_node_id" db:"pull_request_node_id"`
	UserNodeID        int64     `json:"user_node_id" db:"user_node_id"`
	UserLogin         string    `json:"user_login" db:"user_login"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	InReview          bool      `json:"in_review" db:"in_review"`
}

// PRCommit links a commit to a PR with authorship timestamps.
type PRCommit struct {
	PullRequestNodeID int64     `json:"pull_request_node_id" db:"pull_request_node_id"`
	CommitNodeID      int64     `json:"commit_node_id" db:"commit_node_id"`
	SHA               string    `json:"sha" db:"sha"`
	AuthorLogin       string    `json:"author_login" db:"author_login"`
	CommitterLogin    string    `json:"committer_login" db:"committer_login"`
	AuthoredAt        time.Time `json:"authored_at" db:"authored_at"`
	CommittedAt       time.Time `json:"committed_at" db:"committed_at"`
}

// PRLabel is a label attached to a PR. Names are matched case-insensitively.
type PRLabel struct {
	PullRequestNodeID int64  `json:"pull_request_node_id" db:"pull_request_node_id"`
	Name              string `json:"name" db:"name"`
}

// Commit is a repository commit outside of any PR context.
type Commit struct {
	NodeID             int64     `json:"node_id" db:"node_id"`
	RepositoryFullName string    `json:"repository_full_name" db:"repository_full_name"`
	SHA                string    `json:"sha" db:"sha"`
	ParentSHAs         []string  `json:"parent_shas"`
	AuthorLogin        string    `json:"author_login" db:"author_login"`
	CommitterLogin     string    `json:"committer_login" db:"committer_login"`
	Message            string    `json:"message" db:"message"`
	CommittedAt        time.Time `json:"committed_at" db:"committed_at"`
}

// ReleaseMatch enumerates the supported release matching strategies.
type ReleaseMatch string

const (
	ReleaseMatchTag         ReleaseMatch = "tag"
	ReleaseMatchBranch      ReleaseMatch = "branch"
	ReleaseMatchEvent       ReleaseMatch = "event"
	ReleaseMatchTagOrBranch ReleaseMatch = "tag_or_branch"
)

// ReleaseMatchSetting configures release detection for one repository.
type ReleaseMatchSetting struct {
	Match      ReleaseMatch `json:"match" yaml:"match" db:"match"`
	TagRegex   string       `json:"tags" yaml:"tags" db:"tags"`
	BranchGlob string       `json:"branches" yaml:"branches" db:"branches"`
}

// Release is a resolved release of a repository.
type Release struct {
	NodeID             int64        `json:"node_id" db:"node_id"`
	RepositoryFullName string       `json:"repository_full_name" db:"repository_full_name"`
	Name               string       `json:"name" db:"name"`
	Tag                string       `json:"tag" db:"tag"`
	CommitSHA          string       `json:"commit_sha" db:"commit_sha"`
	MatchedBy          ReleaseMatch `json:"matched_by" db:"matched_by"`
	PublishedAt        time.Time    `json:"published_at" db:"published_at"`
	URL                string       `json:"url" db:"url"`
	AuthorLogin        string       `json:"author_login" db:"author_login"`
	CommitAuthors      []string     `json:"commit_authors"`
	PRNodeIDs          []int64      `json:"pr_node_ids"`
	Hidden             bool         `json:"hidden" db:"hidden"`
}

// CheckRunStatus / conclusion values observed in the metadata store.
const (
	CheckStatusCompleted = "COMPLETED"
	CheckStatusSuccess   = "SUCCESS"
	CheckStatusFailure   = "FAILURE"
	CheckStatusError     = "ERROR"

	CheckConclusionSuccess   = "SUCCESS"
	CheckConclusionFailure   = "FAILURE"
	CheckConclusionNeutral   = "NEUTRAL"
	CheckConclusionStale     = "STALE"
	CheckConclusionTimedOut  = "TIMED_OUT"
	CheckConclusionCancelled = "CANCELLED"
)

// CheckRun is one run inside a check suite, observed at the commit level.
// PullRequestNodeID is 0 while unattributed.
type CheckRun struct {
	CheckRunNodeID     int64      `json:"check_run_node_id" db:"check_run_node_id"`
	CheckSuiteNodeID   string     `json:"check_suite_node_id" db:"check_suite_node_id"`
	RepositoryNodeID   int64      `json:"repository_node_id" db:"repository_node_id"`
	RepositoryFullName string     `json:"repository_full_name" db:"repository_full_name"`
	Name               string     `json:"name" db:"name"`
	Status             string     `json:"status" db:"status"`
	Conclusion         string     `json:"conclusion" db:"conclusion"`
	SuiteStatus        string     `json:"check_suite_status" db:"check_suite_status"`
	SuiteConclusion    string     `json:"check_suite_conclusion" db:"check_suite_conclusion"`
	StartedAt          time.Time  `json:"started_at" db:"started_at"`
	CompletedAt        *time.Time `json:"completed_at" db:"completed_at"`
	CommitNodeID       int64      `json:"commit_node_id" db:"commit_node_id"`
	PullRequestNodeID  int64      `json:"pull_request_node_id" db:"pull_request_node_id"`
	AuthorLogin        string     `json:"author_login" db:"author_login"`
	URL                string     `json:"url" db:"url"`
}

// Deployment is a deployed-components event from the events store.
type Deployment struct {
	Name               string    `json:"name" db:"name"`
	AccountID          int64     `json:"account_id" db:"account_id"`
	RepositoryFullName string    `json:"repository_full_name" db:"repository_full_name"`
	Environment        string    `json:"environment" db:"environment"`
	Reference          string    `json:"reference" db:"reference"`
	ResolvedCommitSHA  string    `json:"resolved_commit_sha" db:"resolved_commit_sha"`
	StartedAt          time.Time `json:"started_at" db:"started_at"`
	FinishedAt         time.Time `json:"finished_at" db:"finished_at"`
	Conclusion         string    `json:"conclusion" db:"conclusion"`
}

// JIRAIssue is an issue row from the metadata store's JIRA schema.
type JIRAIssue struct {
	ID             string     `json:"id" db:"id"`
	Key            string     `json:"key" db:"key"`
	ProjectID      string     `json:"project_id" db:"project_id"`
	Type           string     `json:"type" db:"type"`
	Priority       string     `json:"priority" db:"priority"`
	AssigneeID     string     `json:"assignee_id" db:"assignee_id"`
	ReporterID     string     `json:"reporter_id" db:"reporter_id"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	AcknowledgedAt *time.Time `json:"acknowledged_at" db:"acknowledged_at"`
	ResolvedAt     *time.Time `json:"resolved_at" db:"resolved_at"`
	Labels         []string   `json:"labels"`
}
