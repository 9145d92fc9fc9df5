package promptqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dronehub/internal/apierr"
	"dronehub/internal/containeradapter"
	"dronehub/internal/events"
	"dronehub/internal/logging"
	"dronehub/internal/metrics"
	"dronehub/internal/registry"
	"dronehub/internal/store"
)

// sessionWriteTimeout bounds each SessionSend/SessionType call a dispatch
// issues against the drone's agent session.
const sessionWriteTimeout = 30 * time.Second

type sendJob struct {
	ctx         context.Context
	droneID     string
	chat        string
	prompt      string
	attachments []Attachment
	resultCh    chan sendResult
}

type sendResult struct {
	promptID string
	err      error
}

type queueState struct {
	jobs chan *sendJob

	mu      sync.RWMutex
	pending []PendingPrompt // ring buffer, ascending by At, capped at maxPendingPerQueue
}

// Dispatcher routes prompts into per-(drone, chat) FIFO queues and tracks
// their outcome (spec §4.5).
type Dispatcher struct {
	adapter *containeradapter.Adapter
	reg     *registry.Registry
	db      *store.Store
	bus     *events.Bus
	log     *logging.Logger

	queues sync.Map // "droneID\x00chat" -> *queueState
}

// New returns a ready Dispatcher.
func New(adapter *containeradapter.Adapter, reg *registry.Registry, db *store.Store, bus *events.Bus, log *logging.Logger) *Dispatcher {
	return &Dispatcher{adapter: adapter, reg: reg, db: db, bus: bus, log: log}
}

// Restore reloads persisted pending prompts from bbolt into each queue's
// in-memory ring buffer, for restart recovery.
func (d *Dispatcher) Restore() error {
	return d.db.ForEach(store.BucketPendingPrompts, func(key, value []byte) bool {
		var p PendingPrompt
		if err := json.Unmarshal(value, &p); err != nil {
			return true
		}
		q := d.queueFor(p.DroneID, p.Chat)
		q.mu.Lock()
		q.pending = append(q.pending, p)
		q.mu.Unlock()
		return true
	})
}

func queueKey(droneID, chat string) string {
	return droneID + "\x00" + chat
}

func (d *Dispatcher) queueFor(droneID, chat string) *queueState {
	key := queueKey(droneID, chat)
	if q, ok := d.queues.Load(key); ok {
		return q.(*queueState)
	}
	q := &queueState{jobs: make(chan *sendJob, 64)}
	actual, loaded := d.queues.LoadOrStore(key, q)
	if !loaded {
		go d.worker(droneID, chat, q)
	}
	return actual.(*queueState)
}

// worker drains jobs for one (drone, chat) queue strictly in arrival
// order, with concurrency 1 (spec §4.5).
func (d *Dispatcher) worker(droneID, chat string, q *queueState) {
	for job := range q.jobs {
		id, err := d.doSend(job.ctx, q, droneID, chat, job.prompt, job.attachments)
		job.resultCh <- sendResult{promptID: id, err: err}
	}
}

// Send enqueues a prompt for (droneID, chat) and waits for it to be
// written to the agent session, returning its assigned id.
func (d *Dispatcher) Send(ctx context.Context, droneID, chat, prompt string, attachments []Attachment) (string, error) {
	if strings.TrimSpace(prompt) == "" && len(attachments) == 0 {
		return "", apierr.New(apierr.CodeInvalidName, "prompt must be non-empty or carry at least one attachment")
	}

	drone, err := d.reg.Get(droneID)
	if err != nil {
		return "", err
	}
	if drone.HubPhase != registry.PhaseReady {
		return "", apierr.New(apierr.CodeStateViolation,
			fmt.Sprintf("drone %s is not ready (phase %s)", droneID, drone.HubPhase))
	}
	if len(attachments) > 0 {
		if err := validateAttachments(attachments); err != nil {
			return "", err
		}
	}

	q := d.queueFor(droneID, chat)
	job := &sendJob{ctx: ctx, droneID: droneID, chat: chat, prompt: prompt, attachments: attachments, resultCh: make(chan sendResult, 1)}
	q.jobs <- job

	select {
	case res := <-job.resultCh:
		return res.promptID, res.err
	case <-ctx.Done():
		return "", apierr.New(apierr.CodeTimeout, "send cancelled before dispatch completed")
	}
}

// doSend runs inside the (drone, chat) worker goroutine: it is the single
// critical section writing to the agent session (spec §4.5 "the
// SessionSend+SessionType(Enter) pair is treated as a single critical
// section").
func (d *Dispatcher) doSend(ctx context.Context, q *queueState, droneID, chat, prompt string, attachments []Attachment) (string, error) {
	id := uuid.NewString()
	p := PendingPrompt{
		ID: id, DroneID: droneID, Chat: chat, Prompt: prompt,
		Attachments: len(attachments), State: StateSending, At: time.Now().UTC(),
	}
	d.recordPending(q, p)
	d.persistPending(p)
	metrics.PromptsDispatchedTotal.WithLabelValues(string(StateSending)).Inc()

	session := chat
	if err := d.adapter.SessionSend(ctx, droneID, session, prompt, sessionWriteTimeout); err != nil {
		p.State, p.Reason = StateFailed, err.Error()
		d.recordPending(q, p)
		d.persistPending(p)
		metrics.PromptsDispatchedTotal.WithLabelValues(string(StateFailed)).Inc()
		return id, err
	}
	if err := d.adapter.SessionType(ctx, droneID, session, "", []string{"Enter"}, sessionWriteTimeout); err != nil {
		p.State, p.Reason = StateFailed, err.Error()
		d.recordPending(q, p)
		d.persistPending(p)
		metrics.PromptsDispatchedTotal.WithLabelValues(string(StateFailed)).Inc()
		return id, err
	}

	p.State = StateSent
	d.recordPending(q, p)
	d.persistPending(p)
	metrics.PromptsDispatchedTotal.WithLabelValues(string(StateSent)).Inc()
	if d.bus != nil {
		d.bus.Publish(events.Event{Type: events.TypePendingPrompt, DroneID: droneID, Chat: chat, Timestamp: time.Now()})
	}
	return id, nil
}

func (d *Dispatcher) recordPending(q *queueState, p PendingPrompt) {
	q.mu.Lock()
	replaced := false
	for i, existing := range q.pending {
		if existing.ID == p.ID {
			q.pending[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		q.pending = append(q.pending, p)
	}
	if len(q.pending) > maxPendingPerQueue {
		q.pending = q.pending[len(q.pending)-maxPendingPerQueue:]
	}
	q.mu.Unlock()
	// totalPending read-locks every queue, q included, so q must be unlocked.
	metrics.PendingPrompts.Set(float64(d.totalPending()))
}

func (d *Dispatcher) totalPending() int {
	total := 0
	d.queues.Range(func(_, v any) bool {
		q := v.(*queueState)
		q.mu.RLock()
		for _, p := range q.pending {
			if p.State == StateSending {
				total++
			}
		}
		q.mu.RUnlock()
		return true
	})
	return total
}

func (d *Dispatcher) persistPending(p PendingPrompt) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	key := []byte(p.DroneID + "::" + p.Chat + "::" + p.ID)
	d.db.Put(store.BucketPendingPrompts, key, data)
}

// Pending returns the last maxPendingPerQueue entries for (droneID, chat),
// sorted by At ascending (spec §4.5 pending()).
func (d *Dispatcher) Pending(droneID, chat string) []PendingPrompt {
	q := d.queueFor(droneID, chat)
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]PendingPrompt, len(q.pending))
	copy(out, q.pending)
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// Unstick force-terminates a pending prompt that has been sending|sent for
// at least minAge (spec §4.5 unstick, default 2 minutes).
func (d *Dispatcher) Unstick(droneID, chat, promptID string, minAge time.Duration) error {
	q := d.queueFor(droneID, chat)
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, p := range q.pending {
		if p.ID != promptID {
			continue
		}
		if p.State != StateSending && p.State != StateSent {
			return apierr.New(apierr.CodeStateViolation, "prompt "+promptID+" is not in a stuck-eligible state")
		}
		if time.Since(p.At) < minAge {
			return apierr.New(apierr.CodeStateViolation,
				fmt.Sprintf("prompt %s has not been pending for %s yet", promptID, minAge))
		}
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		d.db.Delete(store.BucketPendingPrompts, []byte(droneID+"::"+chat+"::"+promptID))
		return nil
	}
	return apierr.New(apierr.CodeNotFound, "pending prompt "+promptID+" not found")
}

// Reconcile drops the pending entry matching turnID, if present, because a
// transcript turn with that id has now been observed (spec §4.5
// reconciliation).
func (d *Dispatcher) Reconcile(droneID, chat, turnID string) {
	q := d.queueFor(droneID, chat)
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, p := range q.pending {
		if p.ID == turnID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			d.db.Delete(store.BucketPendingPrompts, []byte(droneID+"::"+chat+"::"+turnID))
			return
		}
	}
}
