// Package reposync implements the repo sync engine (spec §4.2): host-side
// git operations composed with the container adapter's drone-side git
// operations. It owns the seed pipeline, the pull ("Apply") and push-host
// pipelines, and the pull-preview/diff/working-tree read paths.
package reposync

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"dronehub/internal/apierr"
	"dronehub/internal/containeradapter"
	"dronehub/internal/logging"
	"dronehub/internal/metrics"
)

// maxDiffBytes bounds per-file diff payloads (spec §4.2.4 "fixed max-byte
// truncation").
const maxDiffBytes = 256 * 1024

// Engine drives repo sync operations for one fleet.
type Engine struct {
	adapter *containeradapter.Adapter
	dataDir string // scratch root for bundles/patches (spec §4.2.2 "host machine's temp dir")
	log     *logging.Logger
}

// New returns an Engine that uses adapter for drone-side operations and
// dataDir as scratch space for exported bundles/patches.
func New(adapter *containeradapter.Adapter, dataDir string, log *logging.Logger) *Engine {
	return &Engine{adapter: adapter, dataDir: dataDir, log: log}
}

func (e *Engine) observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failure"
		if ae, ok := apierr.As(err); ok && ae.Code == apierr.CodeTimeout {
			outcome = "timeout"
		}
	}
	metrics.RepoSyncOpsTotal.WithLabelValues(op, outcome).Inc()
	_ = start
}

// SeedOptions configures Seed (spec §4.2.1).
type SeedOptions struct {
	HostRepoPath string
	Container    string
	Dest         string
	BaseRef      string
	Branch       string
	Clean        bool
}

// Seed runs the §4.2.1 seeding pipeline and returns the resolved base sha.
func (e *Engine) Seed(ctx context.Context, opts SeedOptions, timeout time.Duration) (string, error) {
	start := time.Now()
	var err error
	defer func() { e.observe("seed", start, err) }()

	var ok bool
	if ok, err = isGitWorkTree(ctx, opts.HostRepoPath); err != nil {
		return "", err
	}
	if !ok {
		err = apierr.New(apierr.CodeEngineFailure, opts.HostRepoPath+" is not a git working tree")
		return "", err
	}

	var baseSha string
	if baseSha, err = currentCommit(ctx, opts.HostRepoPath); err != nil {
		return "", err
	}

	seedErr := e.adapter.RepoSeed(ctx, opts.Container, containeradapter.RepoSeedOptions{
		HostPath: opts.HostRepoPath,
		Dest:     opts.Dest,
		BaseRef:  opts.BaseRef,
		Branch:   opts.Branch,
		Clean:    opts.Clean,
	}, timeout)
	if seedErr != nil {
		err = seedErr
		return "", err
	}

	var droneHead string
	if droneHead, err = e.adapter.RepoHeadSha(ctx, opts.Container, opts.Dest, timeout); err != nil {
		return "", err
	}
	if droneHead != baseSha {
		err = apierr.New(apierr.CodeSeedMismatch,
			fmt.Sprintf("drone HEAD %s does not match host commit %s at seed time", droneHead, baseSha))
		return "", err
	}

	if err = e.adapter.RepoSetBaseSha(ctx, opts.Container, opts.Dest, baseSha, timeout); err != nil {
		return "", err
	}
	return baseSha, nil
}

// ApplyResult is the outcome of Apply (spec §4.2.2).
type ApplyResult struct {
	Clean         bool
	ConflictFiles []string
}

// Apply brings committed drone work into the host's current branch as a
// single non-fast-forward merge (spec §4.2.2, the "pull"/"Apply" pipeline).
// The host repo must be on the target branch with a clean working tree.
func (e *Engine) Apply(ctx context.Context, droneID, container, dronePath, hostRepoPath string, timeout time.Duration) (ApplyResult, error) {
	start := time.Now()
	var err error
	defer func() { e.observe("apply", start, err) }()

	scratch := filepath.Join(e.dataDir, "bundles", droneID)
	if err = os.MkdirAll(scratch, 0o755); err != nil {
		err = apierr.Wrap(apierr.CodeInternal, "failed to create bundle scratch dir", err)
		return ApplyResult{}, err
	}

	var dronePathExport string
	dronePathExport, err = e.adapter.RepoExport(ctx, container, containeradapter.RepoExportOptions{
		RepoPath: dronePath,
		OutDir:   "/tmp/dronehub-export",
		Format:   containeradapter.ExportFormatBundle,
		Base:     "dvm.baseSha",
	}, timeout)
	if err != nil {
		return ApplyResult{}, err
	}

	hostBundle := filepath.Join(scratch, fmt.Sprintf("export-%d.bundle", rand.Int63()))
	if err = e.adapter.Copy(ctx, container, dronePathExport, hostBundle, true, timeout); err != nil {
		return ApplyResult{}, err
	}
	defer os.Remove(hostBundle)

	ref := fmt.Sprintf("refs/drone/imports/%s/%d", droneID, rand.Int63())
	defer deleteRef(ctx, hostRepoPath, ref)

	var clean bool
	if clean, err = hasCleanWorkingTree(ctx, hostRepoPath); err != nil {
		return ApplyResult{}, err
	}
	if !clean {
		err = apierr.New(apierr.CodeEngineFailure, "host working tree must be clean before applying drone changes")
		return ApplyResult{}, err
	}

	var importedSha string
	importedSha, err = importBundle(ctx, hostRepoPath, hostBundle, ref)
	if err != nil {
		return ApplyResult{}, err
	}

	mergeErr := mergeNoCommit(ctx, hostRepoPath, importedSha)
	if mergeErr == nil {
		return ApplyResult{Clean: true}, nil
	}

	conflicts, cErr := conflictedFiles(ctx, hostRepoPath)
	if cErr != nil || len(conflicts) == 0 {
		// Not a merge conflict -- abandon the merge and surface patch_apply_error.
		mergeAbort(ctx, hostRepoPath)
		err = apierr.Wrap(apierr.CodePatchApplyError, "merge failed", mergeErr)
		return ApplyResult{}, err
	}

	err = apierr.New(apierr.CodePatchApplyConflict, "merge produced conflicts").
		WithDiagnostics(map[string]any{"conflictFiles": conflicts})
	return ApplyResult{ConflictFiles: conflicts}, err
}

// PushHostResult is the outcome of PushHost (spec §4.2.3).
type PushHostResult struct {
	Clean         bool
	ConflictFiles []string
}

// PushHost merges the host branch into the drone ("Pull host", spec
// §4.2.3). Only invoked when the drone working tree is clean.
func (e *Engine) PushHost(ctx context.Context, container, dronePath, hostRef string, timeout time.Duration) (PushHostResult, error) {
	start := time.Now()
	var err error
	defer func() { e.observe("push_host", start, err) }()

	res, execErr := e.adapter.Exec(ctx, container, "git", []string{"fetch", hostRef}, timeout)
	if execErr != nil {
		err = execErr
		return PushHostResult{}, err
	}
	_ = res

	mergeRes, mergeErr := e.adapter.Exec(ctx, container, "git", []string{"merge", "--no-ff", "FETCH_HEAD"}, timeout)
	if mergeErr == nil {
		return PushHostResult{Clean: true}, nil
	}

	conflictRes, cErr := e.adapter.Exec(ctx, container, "git",
		[]string{"diff", "--name-only", "--diff-filter=U"}, timeout)
	if cErr != nil || conflictRes.Stdout == "" {
		e.adapter.Exec(ctx, container, "git", []string{"merge", "--abort"}, timeout)
		err = apierr.Wrap(apierr.CodePatchApplyError, "drone-side merge failed", mergeErr)
		return PushHostResult{}, err
	}

	conflicts := splitLines(conflictRes.Stdout)
	_ = mergeRes
	err = apierr.New(apierr.CodePatchApplyConflict, "drone-side merge produced conflicts").
		WithDiagnostics(map[string]any{"conflictFiles": conflicts})
	return PushHostResult{ConflictFiles: conflicts}, err
}

// PullPreview lists files changed dvm.baseSha..HEAD inside the drone (spec
// §4.2.4 pull-preview payload). dvm.baseSha is a git config key, not a
// resolvable revision, so the sha is read back via RepoGetBaseSha first and
// substituted into the diff range.
func (e *Engine) PullPreview(ctx context.Context, container, repoPath string, timeout time.Duration) ([]DiffEntry, error) {
	start := time.Now()
	var err error
	defer func() { e.observe("pull_preview", start, err) }()

	var baseSha string
	baseSha, err = e.adapter.RepoGetBaseSha(ctx, container, repoPath, timeout)
	if err != nil {
		return nil, err
	}

	var res *containeradapter.ExecResult
	res, err = e.adapter.Exec(ctx, container, "git",
		[]string{"diff", "--name-status", "-z", baseSha + "..HEAD"}, timeout)
	if err != nil {
		return nil, err
	}
	return parseNameStatus(res.Stdout), nil
}

// DronePullDiff computes the per-file diff dvm.baseSha..HEAD for one path
// inside the drone, truncated to maxDiffBytes (spec §4.2.4 pull-preview
// per-file diff, the drone-side counterpart to FileDiff). repoPath resolves
// the recorded base sha via RepoGetBaseSha before diffing, for the same
// reason PullPreview does.
func (e *Engine) DronePullDiff(ctx context.Context, container, repoPath, path string, timeout time.Duration) (DiffResult, error) {
	start := time.Now()
	var err error
	defer func() { e.observe("pull_diff", start, err) }()

	var baseSha string
	baseSha, err = e.adapter.RepoGetBaseSha(ctx, container, repoPath, timeout)
	if err != nil {
		return DiffResult{}, err
	}

	var res *containeradapter.ExecResult
	res, err = e.adapter.Exec(ctx, container, "git",
		[]string{"diff", baseSha + "..HEAD", "--", path}, timeout)
	if err != nil {
		return DiffResult{}, err
	}
	return truncateDiff(res.Stdout, maxDiffBytes), nil
}

// DroneWorkingTreeStatus runs the working-tree listing inside the drone
// (spec §4.2.4 working-tree listing).
func (e *Engine) DroneWorkingTreeStatus(ctx context.Context, container, repoPath string, timeout time.Duration) (WorkingTreeStatus, error) {
	start := time.Now()
	var err error
	defer func() { e.observe("working_tree_status", start, err) }()

	var res *containeradapter.ExecResult
	res, err = e.adapter.Exec(ctx, container, "git",
		[]string{"status", "--porcelain=v2", "-z", "-uall", "--ignored=no"}, timeout)
	if err != nil {
		return WorkingTreeStatus{}, err
	}
	return parsePorcelainV2(res.Stdout), nil
}
