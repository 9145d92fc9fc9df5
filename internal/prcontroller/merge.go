package prcontroller

import (
	"context"

	"github.com/google/go-github/v43/github"

	"dronehub/internal/apierr"
)

// Merge merges one PR, subject to the hard preconditions and the
// force-overridable checks gate (spec §4.7 "merge").
func (c *Controller) Merge(ctx context.Context, owner, repo string, number int, opts MergeOptions) (MergeResult, error) {
	summary, err := c.summaryFor(ctx, owner, repo, number)
	if err != nil {
		return MergeResult{}, err
	}
	if code, blocked := blockedReason(summary, opts.Force); blocked {
		return MergeResult{}, apierr.New(code, "pull request is not eligible to merge")
	}
	return c.doMerge(ctx, owner, repo, number, opts)
}

func (c *Controller) doMerge(ctx context.Context, owner, repo string, number int, opts MergeOptions) (MergeResult, error) {
	cctx, cancel := c.ctx(ctx)
	defer cancel()

	result, _, err := c.client.PullRequests.Merge(cctx, owner, repo, number, "", &github.PullRequestOptions{
		MergeMethod: string(opts.Method),
	})
	c.observe("merge", err)
	if err != nil {
		return MergeResult{}, wrapGitHubErr("merge", err)
	}
	return MergeResult{Number: number, SHA: result.GetSHA(), Merged: result.GetMerged()}, nil
}

// Close closes a PR without merging it (spec §4.7 "close").
func (c *Controller) Close(ctx context.Context, owner, repo string, number int) error {
	cctx, cancel := c.ctx(ctx)
	defer cancel()

	_, _, err := c.client.PullRequests.Edit(cctx, owner, repo, number, &github.PullRequest{
		State: github.String("closed"),
	})
	c.observe("close", err)
	if err != nil {
		return wrapGitHubErr("close", err)
	}
	return nil
}

// summaryFor fetches one PR and resolves its gating state, used by Merge
// so a single caller doesn't need a prior List call.
func (c *Controller) summaryFor(ctx context.Context, owner, repo string, number int) (Summary, error) {
	cctx, cancel := c.ctx(ctx)
	defer cancel()

	pr, _, err := c.client.PullRequests.Get(cctx, owner, repo, number)
	c.observe("get", err)
	if err != nil {
		return Summary{}, wrapGitHubErr("get", err)
	}

	reviewState, err := c.reviewState(cctx, owner, repo, number)
	if err != nil {
		return Summary{}, err
	}
	checksState, err := c.checksState(cctx, owner, repo, pr.GetHead().GetSHA())
	if err != nil {
		return Summary{}, err
	}
	return summaryFromPR(pr, reviewState, checksState), nil
}
