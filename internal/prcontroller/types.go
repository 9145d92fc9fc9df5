// Package prcontroller implements the PR controller (C7, spec §4.7): list,
// merge, and close pull requests against a drone's GitHub repo, and
// aggregate a bulk-merge pass across the whole open set. Grounded on
// joshdk/drone-github-comment's GitHub client construction
// (oauth2.StaticTokenSource + github.NewClient), generalized from posting
// a single comment to the list/merge/close/bulk-merge operations the
// server needs.
package prcontroller

// ChecksState summarizes a PR's combined check-run status (spec §3's fixed
// value set).
type ChecksState string

const (
	ChecksPassing ChecksState = "success"
	ChecksPending ChecksState = "pending"
	ChecksFailing ChecksState = "failing"
	ChecksUnknown ChecksState = "unknown"
)

// ReviewState summarizes a PR's latest review outcome (spec §3's fixed
// value set).
type ReviewState string

const (
	ReviewRequired         ReviewState = "review_required"
	ReviewApproved         ReviewState = "approved"
	ReviewChangesRequested ReviewState = "changes_requested"
	ReviewUnknown          ReviewState = "unknown"
)

// Summary is one open PR as the controller reports it, matching spec §3's
// pull-request-summary wire shape exactly.
type Summary struct {
	Number            int         `json:"number"`
	Title             string      `json:"title"`
	State             string      `json:"state"`
	Draft             bool        `json:"draft"`
	HTMLURL           string      `json:"htmlUrl"`
	AuthorLogin       string      `json:"authorLogin,omitempty"`
	BaseRefName       string      `json:"baseRefName"`
	HeadRefName       string      `json:"headRefName"`
	IsCrossRepository bool        `json:"isCrossRepository"`
	ChecksState       ChecksState `json:"checksState"`
	ReviewState       ReviewState `json:"reviewState"`
	HasMergeConflicts bool        `json:"hasMergeConflicts"`

	// HeadSHA is not part of spec §3's wire shape; it's carried internally
	// to resolve checksState against the PR's head commit.
	HeadSHA string `json:"-"`
}

// MergeMethod is the merge strategy GitHub accepts for PullRequests.Merge.
type MergeMethod string

const (
	MergeMerge  MergeMethod = "merge"
	MergeSquash MergeMethod = "squash"
	MergeRebase MergeMethod = "rebase"
)

// MergeOptions configures a merge call (spec §4.7 "merge").
type MergeOptions struct {
	Method MergeMethod
	Force  bool // lifts the checksState gate only; never lifts hard preconditions
}

// MergeResult is the outcome of one successful merge.
type MergeResult struct {
	Number int
	SHA    string
	Merged bool
}

// BulkSkip records why one PR was skipped during a bulk merge.
type BulkSkip struct {
	Number int
	Reason string // "blocked_conflict" | "blocked_policy"
}

// BulkFailure records a merge attempt that was not blocked but failed.
type BulkFailure struct {
	Number int
	Error  string
}

// BulkResult is the aggregate outcome of a bulk merge (spec §4.7 "Bulk merge").
type BulkResult struct {
	Merged  int
	Skipped []BulkSkip
	Failed  []BulkFailure
}
