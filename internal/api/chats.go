package api

import (
	"net/http"

	"dronehub/internal/apierr"
	"dronehub/internal/promptqueue"
)

// handleTranscript implements GET /drones/{id}/chats/{chat}/transcript?turn=all|<n>.
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id, chat := r.PathValue("id"), r.PathValue("chat")
	turn := r.URL.Query().Get("turn")
	items, err := s.deps.Prompts.Transcript(id, chat, turn)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"transcripts": items})
}

type promptRequest struct {
	Prompt      string                   `json:"prompt"`
	Attachments []promptqueue.Attachment `json:"attachments"`
}

// handlePrompt implements POST /drones/{id}/chats/{chat}/prompt.
func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	id, chat := r.PathValue("id"), r.PathValue("chat")
	var req promptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, apierr.New(apierr.CodeInvalidName, "malformed request body"))
		return
	}
	promptID, err := s.deps.Prompts.Send(r.Context(), id, chat, req.Prompt, req.Attachments)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"accepted": true, "promptId": promptID})
}

// handlePending implements GET /drones/{id}/chats/{chat}/pending.
func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	id, chat := r.PathValue("id"), r.PathValue("chat")
	writeOK(w, map[string]any{"pending": s.deps.Prompts.Pending(id, chat)})
}

// handleUnstick implements POST /drones/{id}/chats/{chat}/pending/{promptId}/unstick.
func (s *Server) handleUnstick(w http.ResponseWriter, r *http.Request) {
	id, chat, promptID := r.PathValue("id"), r.PathValue("chat"), r.PathValue("promptId")
	if err := s.deps.Prompts.Unstick(id, chat, promptID, s.deps.UnstickAfter()); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}
