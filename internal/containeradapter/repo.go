package containeradapter

import (
	"context"
	"strings"
	"time"

	"dronehub/internal/apierr"
)

// RepoSeedOptions configures RepoSeed (spec §4.1/§4.2.1).
type RepoSeedOptions struct {
	HostPath string
	Dest     string // defaults to the drone's standard workspace path when empty
	BaseRef  string
	Branch   string
	Clean    bool
}

// RepoSeed clones or unpacks hostPath into the container under dest.
func (a *Adapter) RepoSeed(ctx context.Context, container string, opts RepoSeedOptions, timeout time.Duration) error {
	args := []string{"repo", "seed", container, "--host-path", opts.HostPath}
	if opts.Dest != "" {
		args = append(args, "--dest", opts.Dest)
	}
	if opts.BaseRef != "" {
		args = append(args, "--base-ref", opts.BaseRef)
	}
	if opts.Branch != "" {
		args = append(args, "--branch", opts.Branch)
	}
	if opts.Clean {
		args = append(args, "--clean")
	}
	_, _, err := a.run(ctx, "repo_seed", timeout, args...)
	return err
}

// RepoExportFormat enumerates the export formats spec §4.1 RepoExport supports.
type RepoExportFormat string

const (
	ExportFormatPatches RepoExportFormat = "patches"
	ExportFormatBundle  RepoExportFormat = "bundle"
	ExportFormatDiff    RepoExportFormat = "diff"
)

// RepoExportOptions configures RepoExport.
type RepoExportOptions struct {
	RepoPath string
	OutDir   string
	Format   RepoExportFormat
	Base     string // base commit/ref the export is relative to
}

// RepoExport exports the drone repo's changes and returns the exported
// path, as reported by the engine's "Exported <format> -> <path>" line.
func (a *Adapter) RepoExport(ctx context.Context, container string, opts RepoExportOptions, timeout time.Duration) (string, error) {
	args := []string{
		"repo", "export", container,
		"--repo-path", opts.RepoPath,
		"--out-dir", opts.OutDir,
		"--format", string(opts.Format),
	}
	if opts.Base != "" {
		args = append(args, "--base", opts.Base)
	}
	stdout, _, err := a.run(ctx, "repo_export", timeout, args...)
	if err != nil {
		return "", err
	}
	path := parseRepoExport(string(stdout))
	if path == "" {
		return "", apierr.New(apierr.CodeEngineFailure, "dvm repo export produced no exported path")
	}
	return path, nil
}

// RepoHeadSha returns the drone's current HEAD commit.
func (a *Adapter) RepoHeadSha(ctx context.Context, container, repoPath string, timeout time.Duration) (string, error) {
	stdout, _, err := a.run(ctx, "repo_head_sha", timeout, "repo", "head-sha", container, "--repo-path", repoPath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(stdout)), nil
}

// RepoGetBaseSha reads the drone's recorded `dvm.baseSha`, used by the
// lifecycle orchestrator's Clone workflow to snapshot a source drone's
// shared ancestor before seeding the clone.
func (a *Adapter) RepoGetBaseSha(ctx context.Context, container, repoPath string, timeout time.Duration) (string, error) {
	stdout, _, err := a.run(ctx, "repo_get_base_sha", timeout, "repo", "get-base-sha", container, "--repo-path", repoPath)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(stdout)), nil
}

// RepoSetBaseSha records baseSha as `git config dvm.baseSha` inside the
// drone repo and verifies the readback matches, per spec §4.2.1 step 4.
func (a *Adapter) RepoSetBaseSha(ctx context.Context, container, repoPath, baseSha string, timeout time.Duration) error {
	_, _, err := a.run(ctx, "repo_set_base_sha", timeout,
		"repo", "set-base-sha", container, "--repo-path", repoPath, "--sha", baseSha)
	if err != nil {
		return err
	}
	stdout, _, err := a.run(ctx, "repo_get_base_sha", timeout, "repo", "get-base-sha", container, "--repo-path", repoPath)
	if err != nil {
		return err
	}
	got := strings.TrimSpace(string(stdout))
	if got != baseSha {
		return apierr.New(apierr.CodeSeedMismatch,
			"dvm.baseSha readback "+got+" does not match written value "+baseSha)
	}
	return nil
}
