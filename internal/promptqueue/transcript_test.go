package promptqueue

import (
	"context"
	"testing"
)

// TestAppendTurnAssignsDenseMonotonicNumbers covers spec §8's "Transcript
// monotonicity" property: turns for a (drone, chat) pair start at 1 and
// increment by exactly one per append, regardless of the Turn field on the
// item passed in.
func TestAppendTurnAssignsDenseMonotonicNumbers(t *testing.T) {
	d, _, droneID := newTestDispatcher(t, `exit 0`)

	first, err := d.AppendTurn(droneID, "default", TranscriptItem{Prompt: "hello", OK: true})
	if err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if first.Turn != 1 {
		t.Errorf("first.Turn = %d, want 1", first.Turn)
	}

	second, err := d.AppendTurn(droneID, "default", TranscriptItem{Turn: 99, Prompt: "again", OK: true})
	if err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if second.Turn != 2 {
		t.Errorf("second.Turn = %d, want 2 (dense, ignoring the caller-supplied Turn)", second.Turn)
	}

	items, err := d.Transcript(droneID, "default", "all")
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if len(items) != 2 || items[0].Turn != 1 || items[1].Turn != 2 {
		t.Errorf("items = %+v, want turns [1 2]", items)
	}
}

// TestAppendTurnIsScopedPerChat guards against turn numbers leaking across
// chats on the same drone: each (drone, chat) pair gets its own dense
// sequence starting at 1.
func TestAppendTurnIsScopedPerChat(t *testing.T) {
	d, _, droneID := newTestDispatcher(t, `exit 0`)

	if _, err := d.AppendTurn(droneID, "default", TranscriptItem{Prompt: "a", OK: true}); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	other, err := d.AppendTurn(droneID, "side-quest", TranscriptItem{Prompt: "b", OK: true})
	if err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}
	if other.Turn != 1 {
		t.Errorf("other.Turn = %d, want 1 (separate sequence per chat)", other.Turn)
	}
}

// TestAppendTurnReconcilesMatchingPending covers spec §4.5 reconciliation:
// "whenever a new transcript turn is observed whose id equals a pending id,
// drop that pending entry." Exercises the real AppendTurn -> Reconcile path
// rather than calling Reconcile directly.
func TestAppendTurnReconcilesMatchingPending(t *testing.T) {
	d, _, droneID := newTestDispatcher(t, `exit 0`)

	id, err := d.Send(context.Background(), droneID, "default", "hello", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if pending := d.Pending(droneID, "default"); len(pending) != 1 {
		t.Fatalf("expected one pending prompt before completion, got %+v", pending)
	}

	if _, err := d.AppendTurn(droneID, "default", TranscriptItem{ID: id, Prompt: "hello", OK: true}); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	if pending := d.Pending(droneID, "default"); len(pending) != 0 {
		t.Errorf("expected pending cleared after AppendTurn with matching id, got %+v", pending)
	}
}

// TestAppendTurnLeavesUnmatchedPending confirms AppendTurn only reconciles
// the pending entry whose id matches the completed turn's id, leaving
// unrelated pending prompts alone.
func TestAppendTurnLeavesUnmatchedPending(t *testing.T) {
	d, _, droneID := newTestDispatcher(t, `exit 0`)

	if _, err := d.Send(context.Background(), droneID, "default", "hello", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if _, err := d.AppendTurn(droneID, "default", TranscriptItem{ID: "unrelated-id", Prompt: "other", OK: true}); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	if pending := d.Pending(droneID, "default"); len(pending) != 1 {
		t.Errorf("expected the original pending prompt to remain, got %+v", pending)
	}
}
