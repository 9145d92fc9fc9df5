package terminalhub

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"dronehub/internal/containeradapter"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades the request to a WebSocket and streams session output
// from the session's shared poll loop (spec §4.6 "Read -- WebSocket"). A
// ?since=<offset> is echoed in the ready frame; the stream is not rewound
// to it, so bytes before the poll loop's current offset are not replayed.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, droneID, name string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("terminal ws upgrade failed", "drone", droneID, "session", name, "error", err)
		return
	}
	defer conn.Close()

	since := int64(-1)
	if raw := r.URL.Query().Get("since"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			since = n
		}
	}

	s := h.sessionFor(droneID, name)
	ch, unsubscribe, _ := s.subscribe(h)
	defer unsubscribe()

	readyOffset := since
	if since < 0 {
		if res, err := h.adapter.SessionRead(r.Context(), droneID, name,
			containeradapter.SessionReadOptions{Since: -1, TailLines: 0}, h.cfg.ExecTimeout()); err == nil {
			readyOffset = res.OffsetBytes
		}
	}
	if err := conn.WriteJSON(readyMsg(readyOffset)); err != nil {
		return
	}

	writeDone := make(chan struct{})
	go h.wsWriteLoop(conn, ch, writeDone)
	defer func() { <-writeDone }()

	h.wsReadLoop(conn, droneID, name)
}

// wsWriteLoop relays the session's fan-out channel to the client until it
// closes (the session was torn down) or a write fails.
func (h *Hub) wsWriteLoop(conn *websocket.Conn, ch <-chan ServerMessage, done chan<- struct{}) {
	defer close(done)
	for msg := range ch {
		conn.SetWriteDeadline(time.Now().Add(h.cfg.WSWriteTimeout()))
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// wsReadLoop handles client->server frames: coalesced input, resize
// (acknowledged but not wired to any C1 operation -- dvm exposes no
// terminal-resize call), and application-level ping/pong. All coalescer
// access happens on this one goroutine: frames arrive via a relay channel
// so the coalescing timer can be selected on alongside them, rather than
// firing from a second goroutine racing over the same buffer.
func (h *Hub) wsReadLoop(conn *websocket.Conn, droneID, name string) {
	coalescer := newInputCoalescer()
	ctx := context.Background()

	frames := make(chan []byte)
	go func() {
		defer close(frames)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- raw
		}
	}()

	var timerC <-chan time.Time
	for {
		select {
		case raw, ok := <-frames:
			if !ok {
				h.flush(ctx, coalescer, droneID, name)
				return
			}
			var msg ClientMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				continue
			}
			switch msg.Type {
			case "input":
				var flush bool
				flush, timerC = coalescer.Add(msg.Data)
				if flush {
					h.flush(ctx, coalescer, droneID, name)
					timerC = nil
				}
			case "resize":
				// No-op: dvm exposes no resize operation.
			case "ping":
				s := h.sessionFor(droneID, name)
				s.publish(pongMsg)
			}
		case <-timerC:
			h.flush(ctx, coalescer, droneID, name)
			timerC = nil
		}
	}
}

func (h *Hub) flush(ctx context.Context, c *inputCoalescer, droneID, name string) {
	for _, chunk := range c.Flush() {
		if chunk == "" {
			continue
		}
		if err := h.SendInput(ctx, droneID, name, chunk); err != nil {
			h.log.Warn("terminal input write failed", "drone", droneID, "session", name, "error", err)
		}
	}
}
