package promptqueue

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dronehub/internal/apierr"
	"dronehub/internal/containeradapter"
	"dronehub/internal/events"
	"dronehub/internal/logging"
	"dronehub/internal/registry"
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

func newTestDispatcher(t *testing.T, dvmScript string) (*Dispatcher, *registry.Registry, string) {
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
	drone, err := reg.InsertStarting("auth-bugfix", "", "")
	if err != nil {
		t.Fatalf("InsertStarting: %v", err)
	}
	reg.Transition(drone.ID, registry.PhaseStarting, registry.TransitionOpts{})
	reg.Transition(drone.ID, registry.PhaseSeeding, registry.TransitionOpts{})
	reg.Transition(drone.ID, registry.PhaseReady, registry.TransitionOpts{})

	bin := fakeDvm(t, dvmScript)
	adapter := containeradapter.New(bin, logging.New(false))
	d := New(adapter, reg, db, bus, logging.New(false))
	return d, reg, drone.ID
}

func TestSendSucceeds(t *testing.T) {
	d, _, droneID := newTestDispatcher(t, `exit 0`)

	id, err := d.Send(context.Background(), droneID, "default", "hello agent", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty promptID")
	}

	pending := d.Pending(droneID, "default")
	if len(pending) != 1 || pending[0].State != StateSent {
		t.Fatalf("pending = %+v, want one sent entry", pending)
	}
}

func TestSendRejectsEmptyPromptWithNoAttachments(t *testing.T) {
	d, _, droneID := newTestDispatcher(t, `exit 0`)
	_, err := d.Send(context.Background(), droneID, "default", "", nil)
	ae, ok := apierr.As(err)
	if !ok || ae.Code != apierr.CodeInvalidName {
		t.Fatalf("got %v, want invalid_name", err)
	}
}

func TestSendRejectsWhenDroneNotReady(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer db.Close()
	bus := events.New()
	reg, err := registry.Open(db, bus)
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	drone, err := reg.InsertStarting("not-ready", "", "")
	if err != nil {
		t.Fatalf("InsertStarting: %v", err)
	}

	bin := fakeDvm(t, `exit 0`)
	adapter := containeradapter.New(bin, logging.New(false))
	d := New(adapter, reg, db, bus, logging.New(false))

	_, err = d.Send(context.Background(), drone.ID, "default", "hi", nil)
	ae, ok := apierr.As(err)
	if !ok || ae.Code != apierr.CodeStateViolation {
		t.Fatalf("got %v, want state_violation", err)
	}
}

func TestSendFailureRecordsFailedState(t *testing.T) {
	d, _, droneID := newTestDispatcher(t, `echo boom 1>&2; exit 1`)

	id, err := d.Send(context.Background(), droneID, "default", "hello", nil)
	if err == nil {
		t.Fatal("expected error")
	}

	pending := d.Pending(droneID, "default")
	if len(pending) != 1 || pending[0].ID != id || pending[0].State != StateFailed {
		t.Fatalf("pending = %+v, want one failed entry matching %s", pending, id)
	}
}

func TestSendOrderingWithinQueue(t *testing.T) {
	d, _, droneID := newTestDispatcher(t, `exit 0`)

	const n = 20
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		id, err := d.Send(context.Background(), droneID, "default", "prompt", nil)
		if err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
		ids[i] = id
	}

	pending := d.Pending(droneID, "default")
	if len(pending) != maxPendingPerQueue && len(pending) != n {
		t.Fatalf("got %d pending entries", len(pending))
	}
	for i, p := range pending {
		if p.ID != ids[i] {
			t.Fatalf("pending[%d] = %s, want %s (send order)", i, p.ID, ids[i])
		}
	}
}

func TestUnstickRequiresMinAge(t *testing.T) {
	d, _, droneID := newTestDispatcher(t, `exit 0`)
	id, err := d.Send(context.Background(), droneID, "default", "hello", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	err = d.Unstick(droneID, "default", id, 2*time.Minute)
	ae, ok := apierr.As(err)
	if !ok || ae.Code != apierr.CodeStateViolation {
		t.Fatalf("got %v, want state_violation for too-young prompt", err)
	}

	if err := d.Unstick(droneID, "default", id, 0); err != nil {
		t.Fatalf("Unstick with zero min age: %v", err)
	}
	if pending := d.Pending(droneID, "default"); len(pending) != 0 {
		t.Errorf("expected prompt removed after unstick, got %+v", pending)
	}
}

func TestUnstickUnknownPromptIsNotFound(t *testing.T) {
	d, _, droneID := newTestDispatcher(t, `exit 0`)
	err := d.Unstick(droneID, "default", "missing", 0)
	ae, ok := apierr.As(err)
	if !ok || ae.Code != apierr.CodeNotFound {
		t.Fatalf("got %v, want not_found", err)
	}
}

func TestReconcileDropsMatchingPending(t *testing.T) {
	d, _, droneID := newTestDispatcher(t, `exit 0`)
	id, err := d.Send(context.Background(), droneID, "default", "hello", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	d.Reconcile(droneID, "default", id)
	if pending := d.Pending(droneID, "default"); len(pending) != 0 {
		t.Errorf("expected pending cleared after reconcile, got %+v", pending)
	}
}

func TestRestoreReloadsPersistedPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}

	bus := events.New()
	reg, err := registry.Open(db, bus)
	if err != nil {
		t.Fatalf("registry.Open: %v", err)
	}
	drone, _ := reg.InsertStarting("drone-1", "", "")
	reg.Transition(drone.ID, registry.PhaseStarting, registry.TransitionOpts{})
	reg.Transition(drone.ID, registry.PhaseSeeding, registry.TransitionOpts{})
	reg.Transition(drone.ID, registry.PhaseReady, registry.TransitionOpts{})

	bin := fakeDvm(t, `exit 0`)
	adapter := containeradapter.New(bin, logging.New(false))
	d := New(adapter, reg, db, bus, logging.New(false))
	if _, err := d.Send(context.Background(), drone.ID, "default", "hello", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	db.Close()

	db2, err := store.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	reg2, _ := registry.Open(db2, bus)
	d2 := New(adapter, reg2, db2, bus, logging.New(false))
	if err := d2.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if pending := d2.Pending(drone.ID, "default"); len(pending) != 1 {
		t.Fatalf("pending after restore = %+v, want 1 entry", pending)
	}
}
