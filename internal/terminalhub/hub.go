// Package terminalhub implements the terminal stream hub (spec §4.6): one
// persistent pseudo-terminal session per (droneId, chat), served over a
// WebSocket stream and an HTTP polling fallback, both tagging output with
// byte offsets; only the polling fallback reads from a caller-given offset.
// Streaming to WebSocket clients needs the hub to pull
// new bytes out of C1 in the background and fan them out -- C1's
// SessionRead is a pull API, not a push one -- so each session with at
// least one subscriber runs its own poll loop, grounded on the same
// fan-out-bus idiom internal/events/bus.go uses for fleet events, but
// keyed per (droneId, sessionName) rather than one shared bus, since here
// every subscriber additionally needs byte-offset-consistent replay.
package terminalhub

import (
	"context"
	"sync"
	"time"

	"dronehub/internal/config"
	"dronehub/internal/containeradapter"
	"dronehub/internal/logging"
	"dronehub/internal/metrics"
)

// subscriberBufferSize bounds each subscriber's output channel; a slow
// reader has output dropped rather than blocking the session's poll loop.
const subscriberBufferSize = 64

// wsPollInterval is how often the hub pulls new session output from C1 on
// behalf of connected WebSocket subscribers.
const wsPollInterval = 120 * time.Millisecond

// session is the hub's per-(droneId, sessionName) state.
type session struct {
	droneID string
	name    string

	mu      sync.Mutex
	offset  int64
	subs    map[uint64]chan ServerMessage
	nextSub uint64
	closed  bool
	cancel  context.CancelFunc
}

// Hub manages terminal sessions across the fleet.
type Hub struct {
	adapter *containeradapter.Adapter
	cfg     *config.Config
	log     *logging.Logger

	sessions sync.Map // "droneID\x00sessionName" -> *session
}

// New returns a ready Hub.
func New(adapter *containeradapter.Adapter, cfg *config.Config, log *logging.Logger) *Hub {
	return &Hub{adapter: adapter, cfg: cfg, log: log}
}

func sessionKey(droneID, name string) string {
	return droneID + "\x00" + name
}

func sessionName(mode Mode, chat string) string {
	return string(mode) + "-" + chat
}

func cmdForMode(mode Mode) string {
	if mode == ModeShell {
		return "/bin/sh"
	}
	return "agent"
}

// Open opens (or reuses) the terminal session for (droneID, opts.Chat,
// opts.Mode) and returns its session name (spec §4.6 "Open").
func (h *Hub) Open(ctx context.Context, droneID string, opts OpenOptions) (string, error) {
	name := sessionName(opts.Mode, opts.Chat)
	key := sessionKey(droneID, name)

	if _, ok := h.sessions.Load(key); ok {
		return name, nil
	}

	var cmdArgs []string
	if opts.CWD != "" {
		cmdArgs = []string{"--cwd", opts.CWD}
	}
	if err := h.adapter.SessionStart(ctx, droneID, name, cmdForMode(opts.Mode), cmdArgs, true, h.cfg.ExecTimeout()); err != nil {
		return "", err
	}

	s := &session{droneID: droneID, name: name, subs: make(map[uint64]chan ServerMessage), offset: -1}
	if _, loaded := h.sessions.LoadOrStore(key, s); !loaded {
		metrics.TerminalSessionsActive.Inc()
	}
	return name, nil
}

func (h *Hub) sessionFor(droneID, name string) *session {
	key := sessionKey(droneID, name)
	if s, ok := h.sessions.Load(key); ok {
		return s.(*session)
	}
	s := &session{droneID: droneID, name: name, subs: make(map[uint64]chan ServerMessage), offset: -1}
	actual, _ := h.sessions.LoadOrStore(key, s)
	return actual.(*session)
}

// Close tears down a session's hub-side bookkeeping (it does not stop the
// underlying C1 session, which may be reused by a future Open).
func (h *Hub) Close(droneID, name string) {
	key := sessionKey(droneID, name)
	v, ok := h.sessions.LoadAndDelete(key)
	if !ok {
		return
	}
	s := v.(*session)
	s.mu.Lock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.mu.Unlock()
	metrics.TerminalSessionsActive.Dec()
}

// subscribe registers a new output subscriber for a session, starting its
// background poll loop if this is the first subscriber.
func (s *session) subscribe(h *Hub) (<-chan ServerMessage, func(), int64) {
	s.mu.Lock()
	ch := make(chan ServerMessage, subscriberBufferSize)
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	startLoop := len(s.subs) == 1 && s.cancel == nil
	offset := s.offset
	s.mu.Unlock()

	if startLoop {
		ctx, cancel := context.WithCancel(context.Background())
		s.mu.Lock()
		s.cancel = cancel
		s.mu.Unlock()
		go h.pollLoop(ctx, s)
	}

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if ch, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
		if len(s.subs) == 0 && s.cancel != nil {
			s.cancel()
			s.cancel = nil
		}
	}
	return ch, cancel, offset
}

func (s *session) publish(msg ServerMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// pollLoop pulls new bytes from C1 every wsPollInterval and fans them out
// to every subscriber, stopping once the last subscriber unsubscribes
// (spec §4.6 byte-ordering invariant: every subscriber sees the same
// offset-tagged prefix, since there is exactly one poll loop per session).
func (h *Hub) pollLoop(ctx context.Context, s *session) {
	ticker := time.NewTicker(wsPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			since := s.offset
			s.mu.Unlock()

			res, err := h.adapter.SessionRead(ctx, s.droneID, s.name,
				containeradapter.SessionReadOptions{Since: since}, h.cfg.ExecTimeout())
			if err != nil {
				s.publish(errorMsg(err.Error()))
				continue
			}
			if res.Text == "" && res.OffsetBytes == since {
				continue
			}

			s.mu.Lock()
			s.offset = res.OffsetBytes
			s.mu.Unlock()

			metrics.TerminalBytesStreamed.Add(float64(len(res.Text)))
			s.publish(outputMsg(res.OffsetBytes, res.Text))
		}
	}
}

// ReadOnce services the HTTP polling fallback directly against C1, with no
// hub-side poll loop involved (spec §4.6 "Read -- polling fallback").
func (h *Hub) ReadOnce(ctx context.Context, droneID, name string, opts containeradapter.SessionReadOptions) (PollOutput, error) {
	res, err := h.adapter.SessionRead(ctx, droneID, name, opts, h.cfg.ExecTimeout())
	if err != nil {
		return PollOutput{}, err
	}
	metrics.TerminalBytesStreamed.Add(float64(len(res.Text)))
	return PollOutput{OffsetBytes: res.OffsetBytes, Text: res.Text}, nil
}

// SendInput writes raw input to a session (spec §4.6 client "input"
// messages relay through SessionSend, unlike C5's prompt dispatch, since
// terminal input carries no Enter-key framing of its own).
func (h *Hub) SendInput(ctx context.Context, droneID, name, data string) error {
	return h.adapter.SessionSend(ctx, droneID, name, data, h.cfg.ExecTimeout())
}

// RetryInput writes input with exponential backoff, retrying until it
// succeeds or the session is closed (spec §4.6 "the hub retries input
// forever with exponential backoff until success or the session closes").
// It is meant to be run in its own goroutine on behalf of polling clients,
// who cannot hold a write retry loop open themselves.
func (h *Hub) RetryInput(ctx context.Context, droneID, name, data string) {
	const (
		base    = 250 * time.Millisecond
		maxWait = 6 * time.Second
	)
	s := h.sessionFor(droneID, name)
	delay := base
	for {
		if err := h.SendInput(ctx, droneID, name, data); err == nil {
			return
		}
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxWait {
			delay = maxWait
		}
	}
}
