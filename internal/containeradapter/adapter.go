// Package containeradapter is the single point of contact with the
// container engine (spec §4.1/§6.1). It shells out to the external `dvm`
// CLI and parses its stdout into typed results; it never talks to a
// container runtime API directly.
package containeradapter

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"dronehub/internal/apierr"
	"dronehub/internal/logging"
	"dronehub/internal/metrics"
)

// killGrace is how long a subprocess gets between SIGTERM and SIGKILL once
// its deadline is exceeded (spec §4.1, §5).
const killGrace = 1500 * time.Millisecond

// Adapter invokes the dvm binary for every container-engine operation.
type Adapter struct {
	binPath string
	log     *logging.Logger
}

// New returns an Adapter that invokes binPath (e.g. "dvm") for every op.
func New(binPath string, log *logging.Logger) *Adapter {
	return &Adapter{binPath: binPath, log: log}
}

// ExecResult is the outcome of a non-session exec (spec §4.1 Exec).
type ExecResult struct {
	Code   int
	Stdout string
	Stderr string
}

// run invokes dvm with args under the given deadline, returning combined
// output on failure wrapped as an *apierr.Error. On timeout, the process is
// sent SIGTERM, then SIGKILL after killGrace if it hasn't exited.
func (a *Adapter) run(ctx context.Context, op string, timeout time.Duration, args ...string) ([]byte, []byte, error) {
	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, a.binPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = killGrace

	err := cmd.Run()
	dur := time.Since(start)
	metrics.ContainerOpDuration.WithLabelValues(op).Observe(dur.Seconds())

	if cctx.Err() == context.DeadlineExceeded {
		metrics.ContainerOpsTotal.WithLabelValues(op, "timeout").Inc()
		return stdout.Bytes(), stderr.Bytes(), apierr.New(apierr.CodeTimeout,
			fmt.Sprintf("dvm %s timed out after %s", op, timeout))
	}
	if err != nil {
		metrics.ContainerOpsTotal.WithLabelValues(op, "failure").Inc()
		combined := stderr.String()
		if combined == "" {
			combined = stdout.String()
		}
		return stdout.Bytes(), stderr.Bytes(), apierr.Wrap(apierr.CodeEngineFailure,
			fmt.Sprintf("dvm %s: %s", op, combined), err)
	}
	metrics.ContainerOpsTotal.WithLabelValues(op, "ok").Inc()
	return stdout.Bytes(), stderr.Bytes(), nil
}

// Exec runs a command inside a drone's container (spec §4.1 Exec).
func (a *Adapter) Exec(ctx context.Context, container, cmdName string, args []string, timeout time.Duration) (*ExecResult, error) {
	full := append([]string{"exec", container, "--", cmdName}, args...)
	stdout, stderr, err := a.run(ctx, "exec", timeout, full...)
	res := &ExecResult{Stdout: string(stdout), Stderr: string(stderr)}
	if err != nil {
		if e, ok := apierr.As(err); ok && e.Code == apierr.CodeEngineFailure {
			res.Code = 1
			return res, err
		}
		return res, err
	}
	return res, nil
}

// Create creates a new container (spec §4.1 Create, §6.1).
func (a *Adapter) Create(ctx context.Context, container string, args []string, timeout time.Duration) error {
	full := append([]string{"create", container}, args...)
	_, _, err := a.run(ctx, "create", timeout, full...)
	return err
}

// Start starts a container.
func (a *Adapter) Start(ctx context.Context, container string, timeout time.Duration) error {
	_, _, err := a.run(ctx, "start", timeout, "start", container)
	return err
}

// Stop stops a container.
func (a *Adapter) Stop(ctx context.Context, container string, timeout time.Duration) error {
	_, _, err := a.run(ctx, "stop", timeout, "stop", container)
	return err
}

// Remove removes a container, optionally keeping its volume.
func (a *Adapter) Remove(ctx context.Context, container string, keepVolume bool, timeout time.Duration) error {
	args := []string{"rm", container}
	if keepVolume {
		args = append(args, "--keep-volume")
	}
	_, _, err := a.run(ctx, "rm", timeout, args...)
	return err
}

// RenameOptions configures Rename (spec §4.1 Rename).
type RenameOptions struct {
	StartMode         string // "preserve", "always", "never"
	MigrateVolumeName bool
}

// Rename renames a container.
func (a *Adapter) Rename(ctx context.Context, oldName, newName string, opts RenameOptions, timeout time.Duration) error {
	args := []string{"rename", oldName, newName}
	if opts.MigrateVolumeName {
		args = append(args, "--migrate-volume-name")
	}
	switch opts.StartMode {
	case "always":
		args = append(args, "--start")
	case "never":
		args = append(args, "--no-start")
	}
	_, _, err := a.run(ctx, "rename", timeout, args...)
	return err
}

// Ls returns a deduplicated list of container names.
func (a *Adapter) Ls(ctx context.Context, timeout time.Duration) ([]string, error) {
	stdout, _, err := a.run(ctx, "ls", timeout, "ls")
	if err != nil {
		return nil, err
	}
	return parseLsBlocks(string(stdout)), nil
}

// Port is a single host:container port mapping (spec §4.1 Ports).
type Port struct {
	HostPort      int
	ContainerPort int
}

// Ports returns the port mapping for a container, deduplicated and sorted
// by container port then host port.
func (a *Adapter) Ports(ctx context.Context, container string, timeout time.Duration) ([]Port, error) {
	stdout, _, err := a.run(ctx, "ports", timeout, "ports", container)
	if err != nil {
		return nil, err
	}
	return parsePorts(string(stdout)), nil
}

// BaseSet commits the current container state as a new base image.
func (a *Adapter) BaseSet(ctx context.Context, container string, timeout time.Duration) (string, error) {
	stdout, _, err := a.run(ctx, "base_set", timeout, "base", "set", container)
	if err != nil {
		return "", err
	}
	return parseBaseSet(string(stdout)), nil
}

// Copy copies a path into or out of a container.
func (a *Adapter) Copy(ctx context.Context, container, src, dest string, clean bool, timeout time.Duration) error {
	args := []string{"copy", container, src, dest}
	if clean {
		args = append(args, "--clean")
	}
	_, _, err := a.run(ctx, "copy", timeout, args...)
	return err
}

// Script runs a script inside the container.
func (a *Adapter) Script(ctx context.Context, container, path string, args []string, timeout time.Duration) (*ExecResult, error) {
	full := append([]string{"script", container, path, "--"}, args...)
	stdout, stderr, err := a.run(ctx, "script", timeout, full...)
	return &ExecResult{Stdout: string(stdout), Stderr: string(stderr)}, err
}
