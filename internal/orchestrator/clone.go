package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dronehub/internal/apierr"
	"dronehub/internal/registry"
	"dronehub/internal/reposync"
)

// Clone creates a new drone seeded from sourceID's current base commit,
// optionally carrying over its chat transcripts (spec §4.4 "Clone").
func (o *Orchestrator) Clone(ctx context.Context, sourceID, newName string, includeChats bool) (registry.Drone, error) {
	start := time.Now()
	defer o.observe("clone", start)

	source, err := o.reg.Get(sourceID)
	if err != nil {
		return registry.Drone{}, err
	}
	if source.HubPhase != registry.PhaseReady {
		return registry.Drone{}, apierr.New(apierr.CodeStateViolation,
			fmt.Sprintf("drone %s is not ready", sourceID))
	}

	baseSha, err := o.adapter.RepoGetBaseSha(ctx, source.Name, source.RepoPath, o.cfg.ExecTimeout())
	if err != nil {
		return registry.Drone{}, err
	}

	var chatSnapshot string
	if includeChats {
		chatSnapshot = filepath.Join(o.cfg.DataDir, "clone-chats", sourceID+"-"+newName)
		if err := os.MkdirAll(filepath.Dir(chatSnapshot), 0o755); err != nil {
			return registry.Drone{}, apierr.Wrap(apierr.CodeInternal, "failed to create clone scratch dir", err)
		}
		if err := o.adapter.Copy(ctx, source.Name, "/drone/chats", chatSnapshot, false, o.cfg.ExecTimeout()); err != nil {
			return registry.Drone{}, err
		}
		defer os.RemoveAll(chatSnapshot)
	}

	drone, err := o.reg.InsertStarting(newName, source.Group, source.RepoPath)
	if err != nil {
		return registry.Drone{}, err
	}

	err = o.reg.WithLock(drone.ID, func() error {
		return o.cloneWorkflow(ctx, drone.ID, newName, source.RepoPath, baseSha, chatSnapshot)
	})
	if err != nil {
		return registry.Drone{}, err
	}
	return o.reg.Get(drone.ID)
}

func (o *Orchestrator) cloneWorkflow(ctx context.Context, droneID, container, repoPath, baseSha, chatSnapshot string) error {
	execTimeout := o.cfg.ExecTimeout()

	if err := o.adapter.Create(ctx, container, nil, execTimeout); err != nil {
		o.failCreate(droneID, err)
		return err
	}
	if _, err := o.reg.Transition(droneID, registry.PhaseStarting, registry.TransitionOpts{}); err != nil {
		return err
	}
	if _, err := o.reg.Transition(droneID, registry.PhaseSeeding, registry.TransitionOpts{}); err != nil {
		return err
	}

	if repoPath != "" {
		_, err := o.repoEngine.Seed(ctx, reposync.SeedOptions{
			HostRepoPath: repoPath,
			Container:    container,
			Dest:         repoPath,
			BaseRef:      baseSha,
		}, o.cfg.SeedTimeout())
		if err != nil {
			o.failCreate(droneID, err)
			return err
		}
	}

	if chatSnapshot != "" {
		if err := o.adapter.Copy(ctx, container, chatSnapshot, "/drone/chats", false, execTimeout); err != nil {
			o.failCreate(droneID, err)
			return err
		}
	}

	if err := o.adapter.SessionStart(ctx, container, "agent", "agent", nil, true, execTimeout); err != nil {
		o.failCreate(droneID, err)
		return err
	}

	_, err := o.reg.Transition(droneID, registry.PhaseReady, registry.TransitionOpts{})
	return err
}
