package reposync

import "context"

// DiffResult is a single per-file diff with truncation applied (spec
// §4.2.4 "fixed max-byte truncation; set truncated when exceeded").
type DiffResult struct {
	Diff          string `json:"diff"`
	Truncated     bool   `json:"truncated"`
	FromUntracked bool   `json:"fromUntracked,omitempty"`
}

func truncateDiff(s string, maxBytes int) DiffResult {
	if len(s) <= maxBytes {
		return DiffResult{Diff: s}
	}
	return DiffResult{Diff: s[:maxBytes], Truncated: true}
}

// FileDiff computes `git diff base..head -- path` at repoDir, truncated to
// maxBytes (spec §4.2.4 per-file diff).
func FileDiff(ctx context.Context, repoDir, base, head, path string, maxBytes int) (DiffResult, error) {
	out, err := runGit(ctx, repoDir, "diff", base+".."+head, "--", path)
	if err != nil {
		return DiffResult{}, err
	}
	return truncateDiff(out, maxBytes), nil
}

// WorkingTreeFileDiffKind distinguishes a staged vs. unstaged per-file diff
// (spec §4.2.4 "kind ∈ {staged, unstaged}").
type WorkingTreeFileDiffKind string

const (
	DiffKindStaged   WorkingTreeFileDiffKind = "staged"
	DiffKindUnstaged WorkingTreeFileDiffKind = "unstaged"
)

// WorkingTreeFileDiff computes a working-tree per-file diff. Untracked
// files are synthesised against /dev/null with FromUntracked set, per spec
// §4.2.4.
func WorkingTreeFileDiff(ctx context.Context, repoDir, path string, kind WorkingTreeFileDiffKind, untracked bool, maxBytes int) (DiffResult, error) {
	if untracked {
		out, err := runGit(ctx, repoDir, "diff", "--no-index", "--", "/dev/null", path)
		// git diff --no-index exits 1 when a difference is found; runGit
		// treats any non-zero exit as an engine_failure, so callers reaching
		// here with content in out but err != nil still want that diff text.
		if err != nil && out == "" {
			return DiffResult{}, err
		}
		res := truncateDiff(out, maxBytes)
		res.FromUntracked = true
		return res, nil
	}

	args := []string{"diff"}
	if kind == DiffKindStaged {
		args = append(args, "--cached")
	}
	args = append(args, "--", path)
	out, err := runGit(ctx, repoDir, args...)
	if err != nil {
		return DiffResult{}, err
	}
	return truncateDiff(out, maxBytes), nil
}
