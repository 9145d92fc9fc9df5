package orchestrator

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"dronehub/internal/registry"
)

// sweepOrphans compares the live container list against the registry and
// transitions any drone whose container has vanished out from under it to
// "error" (spec §4.4 "Orphan GC sweep").
func (o *Orchestrator) sweepOrphans(ctx context.Context) {
	live, err := o.adapter.Ls(ctx, o.cfg.ExecTimeout())
	if err != nil {
		o.log.Error("orphan gc: failed to list containers", "error", err)
		return
	}
	liveSet := make(map[string]bool, len(live))
	for _, name := range live {
		liveSet[name] = true
	}

	for _, d := range o.reg.List() {
		if d.HubPhase == registry.PhaseError {
			continue
		}
		if liveSet[d.Name] {
			continue
		}
		err := o.reg.WithLock(d.ID, func() error {
			cur, err := o.reg.Get(d.ID)
			if err != nil || cur.HubPhase == registry.PhaseError {
				return nil
			}
			_, err = o.reg.Transition(d.ID, registry.PhaseError,
				registry.TransitionOpts{StatusError: "container not found during orphan sweep"})
			return err
		})
		if err != nil {
			o.log.Error("orphan gc: failed to mark drone errored", "drone", d.ID, "error", err)
		}
	}
}

// StartOrphanGC schedules the orphan sweep on schedule (a standard cron
// expression or "@every <duration>") and returns a stop function. An empty
// schedule disables the sweep and returns a no-op stop function.
func (o *Orchestrator) StartOrphanGC(schedule string) (func(), error) {
	if schedule == "" {
		return func() {}, nil
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.ExecTimeout())
		defer cancel()
		o.sweepOrphans(ctx)
	})
	if err != nil {
		return nil, err
	}
	c.Start()

	return func() {
		stopCtx := c.Stop()
		select {
		case <-stopCtx.Done():
		case <-time.After(5 * time.Second):
		}
	}, nil
}
