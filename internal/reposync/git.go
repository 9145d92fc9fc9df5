package reposync

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"dronehub/internal/apierr"
)

// killGrace mirrors the container adapter's SIGTERM-then-SIGKILL grace
// period (spec §4.1/§5) for host-side git subprocesses.
const killGrace = 1500 * time.Millisecond

// runGit runs git with the given args rooted at dir and returns combined
// stdout/stderr trimmed of surrounding whitespace. Non-zero exit becomes an
// engine_failure carrying the combined output; deadline exceeded becomes
// timeout.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = killGrace

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	combined := strings.TrimSpace(out.String())
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return combined, apierr.New(apierr.CodeTimeout, "git "+strings.Join(args, " ")+" timed out")
		}
		return combined, apierr.Wrap(apierr.CodeEngineFailure, "git "+strings.Join(args, " ")+" failed: "+combined, err)
	}
	return combined, nil
}

// isGitWorkTree reports whether dir is inside a git working tree.
func isGitWorkTree(ctx context.Context, dir string) (bool, error) {
	out, err := runGit(ctx, dir, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return false, err
	}
	return out == "true", nil
}

// currentCommit resolves HEAD at dir.
func currentCommit(ctx context.Context, dir string) (string, error) {
	return runGit(ctx, dir, "rev-parse", "HEAD")
}

// importBundle imports bundlePath into repoDir at ref and returns the
// imported commit sha (spec §4.2.2 step 3).
func importBundle(ctx context.Context, repoDir, bundlePath, ref string) (string, error) {
	if _, err := runGit(ctx, repoDir, "fetch", bundlePath, "HEAD:"+ref); err != nil {
		return "", err
	}
	return runGit(ctx, repoDir, "rev-parse", ref)
}

// deleteRef best-effort deletes ref; errors are swallowed since this is
// always called on a cleanup path (spec §4.2.2 step 6).
func deleteRef(ctx context.Context, repoDir, ref string) {
	runGit(ctx, repoDir, "update-ref", "-d", ref)
}

// mergeNoCommit runs a non-committing, no-fast-forward merge of sha into
// the current branch at repoDir (spec §4.2.2 step 4).
func mergeNoCommit(ctx context.Context, repoDir, sha string) error {
	_, err := runGit(ctx, repoDir, "merge", "--no-commit", "--no-ff", sha)
	return err
}

// mergeFF runs a no-fast-forward committing merge (spec §4.2.3 push-host).
func mergeFF(ctx context.Context, repoDir, sha string) error {
	_, err := runGit(ctx, repoDir, "merge", "--no-ff", sha)
	return err
}

// mergeAbort aborts an in-progress merge; errors are swallowed, this only
// ever runs on an already-failing path.
func mergeAbort(ctx context.Context, repoDir string) {
	runGit(ctx, repoDir, "merge", "--abort")
}

// conflictedFiles returns paths with unmerged state in the index.
func conflictedFiles(ctx context.Context, repoDir string) ([]string, error) {
	out, err := runGit(ctx, repoDir, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// hasCleanWorkingTree reports whether repoDir has no staged or unstaged changes.
func hasCleanWorkingTree(ctx context.Context, repoDir string) (bool, error) {
	out, err := runGit(ctx, repoDir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out == "", nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
