// Package orchestrator implements the lifecycle orchestrator (spec §4.4):
// the single-writer-per-drone workflows that create, delete, rename, and
// clone drones, composing C1 (containeradapter), C2 (reposync), C3
// (registry) and C5 (promptqueue).
package orchestrator

import (
	"context"
	"time"

	"dronehub/internal/apierr"
	"dronehub/internal/config"
	"dronehub/internal/containeradapter"
	"dronehub/internal/logging"
	"dronehub/internal/metrics"
	"dronehub/internal/promptqueue"
	"dronehub/internal/registry"
	"dronehub/internal/reposync"
)

// Orchestrator drives drone lifecycle workflows under C3's per-id lock.
type Orchestrator struct {
	adapter    *containeradapter.Adapter
	reg        *registry.Registry
	repoEngine *reposync.Engine
	dispatcher *promptqueue.Dispatcher
	cfg        *config.Config
	log        *logging.Logger
}

// New returns a ready Orchestrator.
func New(adapter *containeradapter.Adapter, reg *registry.Registry, repoEngine *reposync.Engine, dispatcher *promptqueue.Dispatcher, cfg *config.Config, log *logging.Logger) *Orchestrator {
	return &Orchestrator{adapter: adapter, reg: reg, repoEngine: repoEngine, dispatcher: dispatcher, cfg: cfg, log: log}
}

// DroneQueueSpec is one entry in a Queue batch (spec §4.4 "Create / Queue").
// Tagged for both JSON (the HTTP API body) and YAML (the CLI front door's
// fleet-manifest form), so the same type decodes either submission shape.
type DroneQueueSpec struct {
	Name       string   `json:"name" yaml:"name"`
	Group      string   `json:"group,omitempty" yaml:"group,omitempty"`
	RepoPath   string   `json:"repoPath,omitempty" yaml:"repoPath,omitempty"`
	Build      []string `json:"build,omitempty" yaml:"build,omitempty"`
	SeedAgent  string   `json:"seedAgent" yaml:"seedAgent"`
	SeedModel  string   `json:"seedModel,omitempty" yaml:"seedModel,omitempty"`
	SeedChat   string   `json:"seedChat,omitempty" yaml:"seedChat,omitempty"`
	SeedPrompt string   `json:"seedPrompt,omitempty" yaml:"seedPrompt,omitempty"`
}

// Rejected is one input that did not make it into the fleet.
type Rejected struct {
	Name    string     `json:"name"`
	Code    apierr.Code `json:"code"`
	Message string     `json:"message"`
}

// QueueResult is the batch outcome of Queue (spec §4.4 "preserving input
// order semantics via name correlation").
type QueueResult struct {
	Accepted []registry.Drone `json:"accepted"`
	Rejected []Rejected       `json:"rejected"`
}

func (o *Orchestrator) observe(op string, start time.Time) {
	metrics.LifecycleOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Queue runs the §4.4 Create workflow for each spec and returns a batch
// result. Acceptance does not mean ready; callers poll the registry.
func (o *Orchestrator) Queue(ctx context.Context, specs []DroneQueueSpec) QueueResult {
	start := time.Now()
	defer o.observe("queue", start)

	result := QueueResult{}
	for _, spec := range specs {
		drone, err := o.reg.InsertStarting(spec.Name, spec.Group, spec.RepoPath)
		if err != nil {
			result.Rejected = append(result.Rejected, rejectionFor(spec.Name, err))
			continue
		}

		err = o.reg.WithLock(drone.ID, func() error {
			return o.createWorkflow(ctx, drone.ID, spec)
		})
		if err != nil {
			result.Rejected = append(result.Rejected, rejectionFor(spec.Name, err))
			continue
		}

		final, err := o.reg.Get(drone.ID)
		if err != nil {
			result.Rejected = append(result.Rejected, rejectionFor(spec.Name, err))
			continue
		}
		result.Accepted = append(result.Accepted, final)
	}
	return result
}

func rejectionFor(name string, err error) Rejected {
	r := Rejected{Name: name, Message: err.Error(), Code: apierr.CodeInternal}
	if ae, ok := apierr.As(err); ok {
		r.Code = ae.Code
	}
	return r
}

// createWorkflow runs spec §4.4 steps 2-7 under the drone's per-id lock.
func (o *Orchestrator) createWorkflow(ctx context.Context, droneID string, spec DroneQueueSpec) error {
	container := spec.Name
	execTimeout := o.cfg.ExecTimeout()

	if err := o.adapter.Create(ctx, container, spec.Build, execTimeout); err != nil {
		o.failCreate(droneID, err)
		return err
	}

	if _, err := o.reg.Transition(droneID, registry.PhaseStarting, registry.TransitionOpts{}); err != nil {
		return err
	}
	if _, err := o.reg.Transition(droneID, registry.PhaseSeeding, registry.TransitionOpts{}); err != nil {
		return err
	}

	if spec.RepoPath != "" {
		_, err := o.repoEngine.Seed(ctx, reposync.SeedOptions{
			HostRepoPath: spec.RepoPath,
			Container:    container,
			Dest:         spec.RepoPath,
			Branch:       spec.SeedChat, // no dedicated branch field on the spec; chat/branch correlation is caller's concern
		}, o.cfg.SeedTimeout())
		if err != nil {
			// Preserve the container so the user can inspect it (spec §4.4 step 4).
			o.failCreate(droneID, err)
			return err
		}
	}

	agentCmd := spec.SeedAgent
	if agentCmd == "" {
		agentCmd = "agent"
	}
	if err := o.adapter.SessionStart(ctx, container, "agent", agentCmd, nil, true, execTimeout); err != nil {
		o.failCreate(droneID, err)
		return err
	}

	if _, err := o.reg.Transition(droneID, registry.PhaseReady, registry.TransitionOpts{}); err != nil {
		return err
	}

	if spec.SeedPrompt != "" {
		chat := spec.SeedChat
		if chat == "" {
			chat = "default"
		}
		if _, err := o.dispatcher.Send(ctx, droneID, chat, spec.SeedPrompt, nil); err != nil {
			// Prompt failures never change hub phase (spec §7 propagation policy).
			o.log.Error("seed prompt dispatch failed", "drone", droneID, "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) failCreate(droneID string, cause error) {
	o.reg.Transition(droneID, registry.PhaseError, registry.TransitionOpts{StatusError: cause.Error()})
}

// Delete marks the drone busy, removes its container, and removes its
// registry record (spec §4.4 "Delete").
func (o *Orchestrator) Delete(ctx context.Context, droneID string) error {
	start := time.Now()
	defer o.observe("delete", start)

	return o.reg.WithLock(droneID, func() error {
		d, err := o.reg.Get(droneID)
		if err != nil {
			return nil // already gone: delete is idempotent (spec §9)
		}
		if err := o.reg.SetBusy(droneID, true); err != nil {
			return err
		}
		if err := o.adapter.Remove(ctx, d.Name, false, o.cfg.ExecTimeout()); err != nil {
			o.reg.SetBusy(droneID, false)
			return err
		}
		return o.reg.Remove(droneID)
	})
}

// Rename validates preconditions, renames the container, then updates the
// registry (spec §4.4 "Rename").
func (o *Orchestrator) Rename(ctx context.Context, droneID, newName string) (registry.Drone, error) {
	start := time.Now()
	defer o.observe("rename", start)

	var result registry.Drone
	err := o.reg.WithLock(droneID, func() error {
		d, err := o.reg.Get(droneID)
		if err != nil {
			return err
		}
		if d.HubPhase == registry.PhaseStarting || d.HubPhase == registry.PhaseSeeding {
			return apierr.New(apierr.CodeStateViolation, "cannot rename drone "+droneID+" while starting or seeding")
		}
		if d.Busy {
			return apierr.New(apierr.CodeStateViolation, "cannot rename drone "+droneID+" while busy")
		}

		if err := o.adapter.Rename(ctx, d.Name, newName,
			containeradapter.RenameOptions{StartMode: "preserve"}, o.cfg.ExecTimeout()); err != nil {
			return err
		}

		result, err = o.reg.Rename(droneID, newName)
		return err
	})
	return result, err
}

// SetBaseImage commits the drone's current container state as a new base
// image (spec §4.4 "Set base image"). The drone must be ready.
func (o *Orchestrator) SetBaseImage(ctx context.Context, droneID string) (string, error) {
	start := time.Now()
	defer o.observe("set_base_image", start)

	var tag string
	err := o.reg.WithLock(droneID, func() error {
		d, err := o.reg.Get(droneID)
		if err != nil {
			return err
		}
		if d.HubPhase != registry.PhaseReady {
			return apierr.New(apierr.CodeStateViolation, "drone "+droneID+" is not ready")
		}
		tag, err = o.adapter.BaseSet(ctx, d.Name, o.cfg.BaseImageTimeout())
		return err
	})
	return tag, err
}
