package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dronehub/internal/apierr"
	"dronehub/internal/config"
	"dronehub/internal/containeradapter"
	"dronehub/internal/events"
	"dronehub/internal/logging"
	"dronehub/internal/promptqueue"
	"dronehub/internal/registry"
	"dronehub/internal/reposync"
	"dronehub/internal/store"
)

func fakeDvm(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dvm")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0o755); err != nil {
		t.Fatalf("write fake dvm: %v", err)
	}
	return path
}

func newTestOrchestrator(t *testing.T, dvmScript string) (*Orchestrator, *registry.Registry) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	bus := events.New()
	reg, err := registry.Open(db, bus)
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}

	log := logging.New(false)
	bin := fakeDvm(t, dvmScript)
	adapter := containeradapter.New(bin, log)
	repoEngine := reposync.New(adapter, t.TempDir(), log)
	dispatcher := promptqueue.New(adapter, reg, db, bus, log)
	cfg := config.NewTestConfig()
	cfg.SetExecTimeout(2 * time.Second)
	cfg.SetSeedTimeout(2 * time.Second)
	cfg.SetBaseImageTimeout(2 * time.Second)

	return New(adapter, reg, repoEngine, dispatcher, cfg, log), reg
}

func TestQueueAcceptsAndTransitionsToReady(t *testing.T) {
	o, reg := newTestOrchestrator(t, `
case "$1" in
  session) exit 0 ;;
  *) exit 0 ;;
esac
`)

	result := o.Queue(context.Background(), []DroneQueueSpec{
		{Name: "auth-bugfix", SeedAgent: "agent"},
	})
	if len(result.Rejected) != 0 {
		t.Fatalf("unexpected rejections: %+v", result.Rejected)
	}
	if len(result.Accepted) != 1 {
		t.Fatalf("got %d accepted, want 1", len(result.Accepted))
	}
	if result.Accepted[0].HubPhase != registry.PhaseReady {
		t.Errorf("phase = %s, want ready", result.Accepted[0].HubPhase)
	}

	got, err := reg.Get(result.Accepted[0].ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.HubPhase != registry.PhaseReady {
		t.Errorf("registry phase = %s, want ready", got.HubPhase)
	}
}

func TestQueueRejectsOnCreateFailureAndPreservesPartialBatch(t *testing.T) {
	o, _ := newTestOrchestrator(t, `
case "$1" in
  create)
    if [ "$2" = "bad-drone" ]; then echo "boom" 1>&2; exit 1; fi
    exit 0
    ;;
  *) exit 0 ;;
esac
`)

	result := o.Queue(context.Background(), []DroneQueueSpec{
		{Name: "good-drone"},
		{Name: "bad-drone"},
	})
	if len(result.Accepted) != 1 || result.Accepted[0].HubPhase != registry.PhaseReady {
		t.Fatalf("accepted = %+v, want one ready drone", result.Accepted)
	}
	if len(result.Rejected) != 1 || result.Rejected[0].Name != "bad-drone" {
		t.Fatalf("rejected = %+v, want one entry for bad-drone", result.Rejected)
	}
	if result.Rejected[0].Code != apierr.CodeEngineFailure {
		t.Errorf("rejected code = %s, want engine_failure", result.Rejected[0].Code)
	}
}

func TestQueueRejectsDuplicateNameBeforeTouchingContainerEngine(t *testing.T) {
	o, _ := newTestOrchestrator(t, `exit 0`)

	first := o.Queue(context.Background(), []DroneQueueSpec{{Name: "dup"}})
	if len(first.Accepted) != 1 {
		t.Fatalf("first queue: %+v", first)
	}

	second := o.Queue(context.Background(), []DroneQueueSpec{{Name: "dup"}})
	if len(second.Rejected) != 1 || second.Rejected[0].Code != apierr.CodeNameConflict {
		t.Fatalf("second queue: %+v, want name_conflict rejection", second)
	}
}

func TestDeleteRemovesReadyDrone(t *testing.T) {
	o, reg := newTestOrchestrator(t, `exit 0`)

	result := o.Queue(context.Background(), []DroneQueueSpec{{Name: "to-delete"}})
	id := result.Accepted[0].ID

	if err := o.Delete(context.Background(), id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := reg.Get(id); err == nil {
		t.Fatal("expected drone to be gone after Delete")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	o, _ := newTestOrchestrator(t, `exit 0`)
	if err := o.Delete(context.Background(), "never-existed"); err != nil {
		t.Fatalf("Delete on unknown id: %v", err)
	}
}

func TestRenameRejectsWhileSeeding(t *testing.T) {
	o, reg := newTestOrchestrator(t, `exit 0`)

	drone, err := reg.InsertStarting("seeding-drone", "", "")
	if err != nil {
		t.Fatalf("InsertStarting: %v", err)
	}
	reg.Transition(drone.ID, registry.PhaseStarting, registry.TransitionOpts{})
	reg.Transition(drone.ID, registry.PhaseSeeding, registry.TransitionOpts{})

	_, err = o.Rename(context.Background(), drone.ID, "new-name")
	ae, ok := apierr.As(err)
	if !ok || ae.Code != apierr.CodeStateViolation {
		t.Fatalf("got %v, want state_violation", err)
	}
}

func TestRenameSucceedsWhenReady(t *testing.T) {
	o, _ := newTestOrchestrator(t, `exit 0`)

	result := o.Queue(context.Background(), []DroneQueueSpec{{Name: "old-name"}})
	id := result.Accepted[0].ID

	renamed, err := o.Rename(context.Background(), id, "new-name")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if renamed.Name != "new-name" {
		t.Errorf("name = %s, want new-name", renamed.Name)
	}
}

func TestSetBaseImageRequiresReady(t *testing.T) {
	o, reg := newTestOrchestrator(t, `
case "$1" in
  base) echo "Base image: my-tag:latest" ;;
  *) exit 0 ;;
esac
`)

	drone, _ := reg.InsertStarting("not-ready-yet", "", "")
	_, err := o.SetBaseImage(context.Background(), drone.ID)
	ae, ok := apierr.As(err)
	if !ok || ae.Code != apierr.CodeStateViolation {
		t.Fatalf("got %v, want state_violation", err)
	}

	result := o.Queue(context.Background(), []DroneQueueSpec{{Name: "ready-drone"}})
	tag, err := o.SetBaseImage(context.Background(), result.Accepted[0].ID)
	if err != nil {
		t.Fatalf("SetBaseImage: %v", err)
	}
	if tag != "my-tag:latest" {
		t.Errorf("tag = %q, want my-tag:latest", tag)
	}
}

func TestAutoRenameDraftReturnsCandidateName(t *testing.T) {
	o, _ := newTestOrchestrator(t, `exit 0`)

	got := o.AutoRenameDraft(context.Background(), func(ctx context.Context, prompt string) (string, error) {
		return "fix-auth-bug", nil
	}, "fix the auth bug")
	if got != "fix-auth-bug" {
		t.Errorf("got %q, want fix-auth-bug", got)
	}
}

func TestAutoRenameDraftAppendsSuffixOnConflict(t *testing.T) {
	o, reg := newTestOrchestrator(t, `exit 0`)
	reg.InsertStarting("fix-auth-bug", "", "")

	got := o.AutoRenameDraft(context.Background(), func(ctx context.Context, prompt string) (string, error) {
		return "fix-auth-bug", nil
	}, "fix the auth bug")
	if got != "fix-auth-bug-2" {
		t.Errorf("got %q, want fix-auth-bug-2", got)
	}
}

func TestAutoRenameDraftRejectsInvalidOutput(t *testing.T) {
	o, _ := newTestOrchestrator(t, `exit 0`)

	got := o.AutoRenameDraft(context.Background(), func(ctx context.Context, prompt string) (string, error) {
		return "Not Dash Case!", nil
	}, "fix the auth bug")
	if got != "" {
		t.Errorf("got %q, want empty string for invalid output", got)
	}
}

func TestSweepOrphansErrorsMissingContainers(t *testing.T) {
	o, reg := newTestOrchestrator(t, `
case "$1" in
  ls) echo "Name: still-alive" ;;
  *) exit 0 ;;
esac
`)

	result := o.Queue(context.Background(), []DroneQueueSpec{
		{Name: "still-alive"},
		{Name: "vanished"},
	})
	if len(result.Accepted) != 2 {
		t.Fatalf("accepted = %+v, want 2", result.Accepted)
	}

	o.sweepOrphans(context.Background())

	for _, d := range result.Accepted {
		got, err := reg.Get(d.ID)
		if err != nil {
			t.Fatalf("Get(%s): %v", d.ID, err)
		}
		if d.Name == "vanished" && got.HubPhase != registry.PhaseError {
			t.Errorf("vanished drone phase = %s, want error", got.HubPhase)
		}
		if d.Name == "still-alive" && got.HubPhase != registry.PhaseReady {
			t.Errorf("still-alive drone phase = %s, want ready", got.HubPhase)
		}
	}
}
