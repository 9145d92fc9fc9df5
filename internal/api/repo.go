package api

import (
	"net/http"

	"dronehub/internal/apierr"
	"dronehub/internal/reposync"
)

// handleRepoChanges implements GET /drones/{id}/repo/changes: the
// drone-side working-tree listing (spec §4.2.4).
func (s *Server) handleRepoChanges(w http.ResponseWriter, r *http.Request) {
	drone, err := s.deps.Fleet.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	status, err := s.deps.RepoOps.DroneWorkingTreeStatus(r.Context(), drone.Name, drone.RepoPath, s.deps.ExecTimeout())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"changes": status})
}

// handleRepoDiff implements GET /drones/{id}/repo/diff?path&kind: the
// host-side per-file diff against the drone's host working tree (spec
// §4.2.4 per-file diff, kind ∈ {staged, unstaged}).
func (s *Server) handleRepoDiff(w http.ResponseWriter, r *http.Request) {
	drone, err := s.deps.Fleet.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		writeErr(w, apierr.New(apierr.CodeInvalidName, "path is required"))
		return
	}
	kind := reposync.WorkingTreeFileDiffKind(q.Get("kind"))
	if kind == "" {
		kind = reposync.DiffKindUnstaged
	}
	untracked := q.Get("untracked") == "true"

	res, err := reposync.WorkingTreeFileDiff(r.Context(), drone.RepoPath, path, kind, untracked, 256*1024)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"diff": res})
}

// handleRepoPull implements POST /drones/{id}/repo/pull: host ← drone
// (spec §4.2.2 Apply).
func (s *Server) handleRepoPull(w http.ResponseWriter, r *http.Request) {
	drone, err := s.deps.Fleet.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	res, err := s.deps.RepoOps.Apply(r.Context(), drone.ID, drone.Name, drone.RepoPath, drone.RepoPath, s.deps.SeedTimeout())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"result": res})
}

type pushRequest struct {
	HostRef string `json:"hostRef"`
}

// handleRepoPush implements POST /drones/{id}/repo/push: drone ← host
// (spec §4.2.3 PushHost).
func (s *Server) handleRepoPush(w http.ResponseWriter, r *http.Request) {
	drone, err := s.deps.Fleet.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	var req pushRequest
	_ = decodeJSON(r, &req) // best-effort: an empty/absent body defaults hostRef below
	if req.HostRef == "" {
		req.HostRef = "HEAD"
	}
	res, err := s.deps.RepoOps.PushHost(r.Context(), drone.Name, drone.RepoPath, req.HostRef, s.deps.SeedTimeout())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"result": res})
}

// handlePullChanges implements GET /drones/{id}/repo/pull/changes: the
// drone-side dvm.baseSha..HEAD name-status preview (spec §4.2.4).
func (s *Server) handlePullChanges(w http.ResponseWriter, r *http.Request) {
	drone, err := s.deps.Fleet.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	entries, err := s.deps.RepoOps.PullPreview(r.Context(), drone.Name, drone.RepoPath, s.deps.ExecTimeout())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"changes": entries})
}

// handlePullDiff implements GET /drones/{id}/repo/pull/diff?path&base&head:
// the drone-side per-file diff against dvm.baseSha..HEAD.
func (s *Server) handlePullDiff(w http.ResponseWriter, r *http.Request) {
	drone, err := s.deps.Fleet.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		writeErr(w, apierr.New(apierr.CodeInvalidName, "path is required"))
		return
	}
	res, err := s.deps.RepoOps.DronePullDiff(r.Context(), drone.Name, drone.RepoPath, path, s.deps.ExecTimeout())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"diff": res})
}
