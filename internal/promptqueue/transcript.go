package promptqueue

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"dronehub/internal/apierr"
	"dronehub/internal/events"
	"dronehub/internal/store"
)

// TranscriptItem is one completed turn in a chat's append-only transcript
// (spec §4.5 "Transcript item"). Turns are dense and monotonic, assigned
// at prompt completion.
type TranscriptItem struct {
	Turn        int       `json:"turn"`
	PromptAt    time.Time `json:"promptAt"`
	CompletedAt time.Time `json:"completedAt"`
	ID          string    `json:"id,omitempty"`
	Prompt      string    `json:"prompt"`
	Session     string    `json:"session"`
	LogPath     string    `json:"logPath,omitempty"`
	OK          bool      `json:"ok"`
	Error       string    `json:"error,omitempty"`
	Output      string    `json:"output"`
}

// turnMu serialises turn assignment across all (drone, chat) pairs; turn
// numbering is low-frequency (one append per agent completion) so a single
// global lock is simpler than per-queue counters.
var turnMu sync.Mutex

func transcriptKey(droneID, chat string, turn int) []byte {
	return []byte(fmt.Sprintf("%s::%s::%010d", droneID, chat, turn))
}

// AppendTurn assigns the next dense turn number for (droneID, chat),
// persists the completed turn, publishes a fleet event, and reconciles any
// pending prompt sharing the turn's id (spec §4.5 reconciliation: "whenever
// a new transcript turn is observed whose id equals a pending id, drop
// that pending entry").
func (d *Dispatcher) AppendTurn(droneID, chat string, item TranscriptItem) (TranscriptItem, error) {
	turnMu.Lock()
	defer turnMu.Unlock()

	last := 0
	d.db.ForEachPrefix(store.BucketChats, []byte(droneID+"::"+chat+"::"), func(_, value []byte) bool {
		var t TranscriptItem
		if json.Unmarshal(value, &t) == nil && t.Turn > last {
			last = t.Turn
		}
		return true
	})
	item.Turn = last + 1
	if item.CompletedAt.IsZero() {
		item.CompletedAt = time.Now().UTC()
	}

	data, err := json.Marshal(item)
	if err != nil {
		return TranscriptItem{}, apierr.Wrap(apierr.CodeInternal, "failed to marshal transcript turn", err)
	}
	if err := d.db.Put(store.BucketChats, transcriptKey(droneID, chat, item.Turn), data); err != nil {
		return TranscriptItem{}, apierr.Wrap(apierr.CodeInternal, "failed to persist transcript turn", err)
	}

	if item.ID != "" {
		d.Reconcile(droneID, chat, item.ID)
	}
	if d.bus != nil {
		d.bus.Publish(events.Event{Type: events.TypeChatTranscript, DroneID: droneID, Chat: chat, Timestamp: time.Now()})
	}
	return item, nil
}

// Transcript returns a chat's transcript items (spec §4.8
// "?turn=all|<n>"). turn == "" or "all" returns every item sorted
// ascending by turn; any other value is parsed as a single turn number.
func (d *Dispatcher) Transcript(droneID, chat, turn string) ([]TranscriptItem, error) {
	var items []TranscriptItem
	err := d.db.ForEachPrefix(store.BucketChats, []byte(droneID+"::"+chat+"::"), func(_, value []byte) bool {
		var t TranscriptItem
		if json.Unmarshal(value, &t) == nil {
			items = append(items, t)
		}
		return true
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.CodeInternal, "failed to read transcript", err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Turn < items[j].Turn })

	if turn == "" || turn == "all" {
		return items, nil
	}
	var n int
	if _, err := fmt.Sscanf(turn, "%d", &n); err != nil {
		return nil, apierr.New(apierr.CodeInvalidName, "turn must be \"all\" or an integer")
	}
	for _, it := range items {
		if it.Turn == n {
			return []TranscriptItem{it}, nil
		}
	}
	return nil, apierr.New(apierr.CodeNotFound, fmt.Sprintf("turn %d not found", n))
}
