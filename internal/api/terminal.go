package api

import (
	"net/http"

	"dronehub/internal/apierr"
	"dronehub/internal/terminalhub"
)

// handleTerminalOpen implements POST /drones/{id}/terminal/open?mode=&chat=&cwd=.
func (s *Server) handleTerminalOpen(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q := r.URL.Query()
	opts := terminalhub.OpenOptions{
		Mode: terminalhub.Mode(q.Get("mode")),
		Chat: q.Get("chat"),
		CWD:  q.Get("cwd"),
	}
	if opts.Mode == "" {
		opts.Mode = terminalhub.ModeShell
	}
	name, err := s.deps.Terminals.Open(r.Context(), id, opts)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"sessionName": name})
}

// handleTerminalOutput implements GET /drones/{id}/terminal/{session}/output.
func (s *Server) handleTerminalOutput(w http.ResponseWriter, r *http.Request) {
	id, session := r.PathValue("id"), r.PathValue("session")
	if id == "" || session == "" {
		writeErr(w, apierr.New(apierr.CodeNotFound, "unknown drone or session"))
		return
	}
	s.deps.Terminals.ServeOutput(w, r, id, session)
}

// handleTerminalInput implements the polling-fallback write side: POST
// /drones/{id}/terminal/{session}/input.
func (s *Server) handleTerminalInput(w http.ResponseWriter, r *http.Request) {
	id, session := r.PathValue("id"), r.PathValue("session")
	s.deps.Terminals.ServeInput(w, r, id, session)
}

// handleTerminalStream implements WS /drones/{id}/terminal/{session}/stream?since=<n>.
func (s *Server) handleTerminalStream(w http.ResponseWriter, r *http.Request) {
	id, session := r.PathValue("id"), r.PathValue("session")
	s.deps.Terminals.ServeWS(w, r, id, session)
}
