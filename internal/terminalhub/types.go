package terminalhub

// Mode selects what command a terminal session runs (spec §4.6 "open").
type Mode string

const (
	ModeShell Mode = "shell"
	ModeAgent Mode = "agent"
)

// OpenOptions configures Open.
type OpenOptions struct {
	Mode Mode
	Chat string
	CWD  string
}

// ServerMessage is one frame the hub writes to a WebSocket client (spec
// §4.6 "Read -- WebSocket").
type ServerMessage struct {
	Type        string `json:"type"`
	OffsetBytes int64  `json:"offsetBytes,omitempty"`
	Text        string `json:"text,omitempty"`
	Error       string `json:"error,omitempty"`
}

func readyMsg(offset int64) ServerMessage {
	return ServerMessage{Type: "ready", OffsetBytes: offset}
}

func outputMsg(offset int64, text string) ServerMessage {
	return ServerMessage{Type: "output", OffsetBytes: offset, Text: text}
}

func errorMsg(err string) ServerMessage {
	return ServerMessage{Type: "error", Error: err}
}

var pongMsg = ServerMessage{Type: "pong"}

// ClientMessage is one frame a WebSocket client sends the hub.
type ClientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`
}

// PollOutput is the response shape of the HTTP polling fallback (spec
// §4.6 "Read -- polling fallback").
type PollOutput struct {
	OffsetBytes int64  `json:"offsetBytes"`
	Text        string `json:"text"`
}
