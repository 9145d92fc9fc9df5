package prcontroller

import (
	"context"

	"github.com/google/go-github/v43/github"
)

// List returns every open PR against (owner, repo) with its merge-gating
// state resolved (spec §4.7 "list").
func (c *Controller) List(ctx context.Context, owner, repo string) ([]Summary, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	prs, _, err := c.client.PullRequests.List(ctx, owner, repo, &github.PullRequestListOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	})
	c.observe("list", err)
	if err != nil {
		return nil, wrapGitHubErr("list", err)
	}

	out := make([]Summary, 0, len(prs))
	for _, pr := range prs {
		reviewState, err := c.reviewState(ctx, owner, repo, pr.GetNumber())
		if err != nil {
			return nil, err
		}
		checksState, err := c.checksState(ctx, owner, repo, pr.GetHead().GetSHA())
		if err != nil {
			return nil, err
		}
		out = append(out, summaryFromPR(pr, reviewState, checksState))
	}
	return out, nil
}

// reviewState derives the PR's latest gating review outcome: any
// CHANGES_REQUESTED review blocks regardless of later APPROVED reviews from
// other reviewers (spec §4.7 merge precondition), matching GitHub's own
// "Review required" branch protection semantics. No review submitted yet
// reports review_required, the fixed taxonomy's value for "still needs a
// review" rather than "none".
func (c *Controller) reviewState(ctx context.Context, owner, repo string, number int) (ReviewState, error) {
	reviews, _, err := c.client.PullRequests.ListReviews(ctx, owner, repo, number, &github.ListOptions{PerPage: 100})
	c.observe("list_reviews", err)
	if err != nil {
		return ReviewUnknown, wrapGitHubErr("list_reviews", err)
	}

	state := ReviewRequired
	for _, rv := range reviews {
		switch rv.GetState() {
		case "CHANGES_REQUESTED":
			return ReviewChangesRequested, nil
		case "APPROVED":
			state = ReviewApproved
		}
	}
	return state, nil
}

// checksState aggregates a ref's gating state from both GitHub check
// sources: the Checks API (ListCheckRunsForRef) for repos on GitHub Actions
// or the Checks API, and the legacy Commit Status API
// (GetCombinedStatus) for repos whose CI still posts plain commit statuses.
// The two sources are merged by escalation -- passing only if every signal
// from both sources is passing, failing if any signal from either source
// is failing, pending otherwise -- so a repo that exclusively uses one API
// is never under-reported just because the other API has nothing to say.
func (c *Controller) checksState(ctx context.Context, owner, repo, ref string) (ChecksState, error) {
	if ref == "" {
		return ChecksUnknown, nil
	}

	checkRuns, _, crErr := c.client.Checks.ListCheckRunsForRef(ctx, owner, repo, ref, &github.ListCheckRunsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	})
	c.observe("list_check_runs", crErr)

	combined, _, csErr := c.client.Repositories.GetCombinedStatus(ctx, owner, repo, ref, &github.ListOptions{PerPage: 100})
	c.observe("get_combined_status", csErr)

	if crErr != nil && csErr != nil {
		return ChecksUnknown, wrapGitHubErr("list_check_runs", crErr)
	}

	sawAny := false
	state := ChecksPassing
	escalate := func(next ChecksState) {
		sawAny = true
		if next == ChecksFailing {
			state = ChecksFailing
			return
		}
		if next == ChecksPending && state != ChecksFailing {
			state = ChecksPending
		}
	}

	if crErr == nil {
		for _, run := range checkRuns.CheckRuns {
			if run.GetStatus() != "completed" {
				escalate(ChecksPending)
				continue
			}
			switch run.GetConclusion() {
			case "failure", "timed_out", "cancelled", "action_required":
				escalate(ChecksFailing)
			default:
				escalate(ChecksPassing)
			}
		}
	}

	if csErr == nil {
		for _, s := range combined.Statuses {
			switch s.GetState() {
			case "pending":
				escalate(ChecksPending)
			case "failure", "error":
				escalate(ChecksFailing)
			default:
				escalate(ChecksPassing)
			}
		}
	}

	if !sawAny {
		return ChecksPassing, nil
	}
	return state, nil
}
