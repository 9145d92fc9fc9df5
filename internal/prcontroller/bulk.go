package prcontroller

import (
	"context"

	"dronehub/internal/apierr"
)

// BulkMerge attempts to merge every open PR against (owner, repo)
// sequentially, skipping any that are blocked and recording any merge
// attempt that fails without aborting the rest of the batch (spec §4.7
// "Bulk merge").
func (c *Controller) BulkMerge(ctx context.Context, owner, repo string, opts MergeOptions) (BulkResult, error) {
	summaries, err := c.List(ctx, owner, repo)
	if err != nil {
		return BulkResult{}, err
	}

	var result BulkResult
	for _, s := range summaries {
		if code, blocked := blockedReason(s, opts.Force); blocked {
			result.Skipped = append(result.Skipped, BulkSkip{Number: s.Number, Reason: string(code)})
			continue
		}
		if _, err := c.doMerge(ctx, owner, repo, s.Number, opts); err != nil {
			msg := err.Error()
			if ae, ok := apierr.As(err); ok {
				msg = ae.Message
			}
			result.Failed = append(result.Failed, BulkFailure{Number: s.Number, Error: msg})
			continue
		}
		result.Merged++
	}
	return result, nil
}
