package terminalhub

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"dronehub/internal/containeradapter"
)

// ServeOutput implements the HTTP polling fallback's read side: GET
// /output?since=<n>&maxBytes=<m>|tail=<lines> (spec §4.6).
func (h *Hub) ServeOutput(w http.ResponseWriter, r *http.Request, droneID, name string) {
	opts := containeradapter.SessionReadOptions{Since: -1}
	q := r.URL.Query()
	if raw := q.Get("since"); raw != "" {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			opts.Since = n
		}
	}
	if raw := q.Get("maxBytes"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			opts.MaxBytes = n
		}
	}
	if raw := q.Get("tail"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			opts.TailLines = n
		}
	}

	out, err := h.ReadOnce(r.Context(), droneID, name, opts)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// pollInputRequest is the body ServeInput accepts.
type pollInputRequest struct {
	Data string `json:"data"`
}

// ServeInput implements the HTTP polling fallback's write side. It hands
// the write off to RetryInput and returns immediately: a polling client
// has no open connection to block on while the hub retries with backoff
// (spec §4.6 "the hub retries input forever with exponential backoff
// until success or the session closes").
func (h *Hub) ServeInput(w http.ResponseWriter, r *http.Request, droneID, name string) {
	var req pollInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	go h.RetryInput(context.Background(), droneID, name, req.Data)
	w.WriteHeader(http.StatusAccepted)
}
