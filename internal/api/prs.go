package api

import (
	"net/http"
	"strconv"

	"dronehub/internal/apierr"
	"dronehub/internal/prcontroller"
	"dronehub/internal/registry"
)

// githubRepoFor resolves the (owner, repo) a drone's host repo maps to,
// failing with not_found when the repo isn't registered against GitHub
// (spec §4.7 "derived from the repo record's github").
func (s *Server) githubRepoFor(droneID string) (registry.RepoGitHub, error) {
	if s.deps.PullRequests == nil {
		return registry.RepoGitHub{}, apierr.New(apierr.CodeStateViolation, "github integration is not configured")
	}
	drone, err := s.deps.Fleet.Get(droneID)
	if err != nil {
		return registry.RepoGitHub{}, err
	}
	repo, err := s.deps.Fleet.GetRepo(drone.RepoPath)
	if err != nil {
		return registry.RepoGitHub{}, err
	}
	if repo.GitHub == nil {
		return registry.RepoGitHub{}, apierr.New(apierr.CodeNotFound, "repo "+drone.RepoPath+" has no github mapping")
	}
	return *repo.GitHub, nil
}

// handleListPRs implements GET /drones/{id}/repo/pull-requests?state=open.
func (s *Server) handleListPRs(w http.ResponseWriter, r *http.Request) {
	gh, err := s.githubRepoFor(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	summaries, err := s.deps.PullRequests.List(r.Context(), gh.Owner, gh.Repo)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"pullRequests": summaries})
}

type mergeRequest struct {
	Method prcontroller.MergeMethod `json:"method"`
	Force  bool                     `json:"force"`
}

// handleMergePR implements POST /drones/{id}/repo/pull-requests/{n}/merge.
func (s *Server) handleMergePR(w http.ResponseWriter, r *http.Request) {
	gh, err := s.githubRepoFor(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	number, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		writeErr(w, apierr.New(apierr.CodeNotFound, "invalid pull request number"))
		return
	}
	var req mergeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, apierr.New(apierr.CodeInvalidName, "malformed request body"))
		return
	}
	res, err := s.deps.PullRequests.Merge(r.Context(), gh.Owner, gh.Repo, number,
		prcontroller.MergeOptions{Method: req.Method, Force: req.Force})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"result": res})
}

// handleClosePR implements POST /drones/{id}/repo/pull-requests/{n}/close.
func (s *Server) handleClosePR(w http.ResponseWriter, r *http.Request) {
	gh, err := s.githubRepoFor(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	number, err := strconv.Atoi(r.PathValue("n"))
	if err != nil {
		writeErr(w, apierr.New(apierr.CodeNotFound, "invalid pull request number"))
		return
	}
	if err := s.deps.PullRequests.Close(r.Context(), gh.Owner, gh.Repo, number); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

// handleBulkMergePRs implements POST /drones/{id}/repo/pull-requests/bulk-merge
// (spec §4.7 "Bulk merge").
func (s *Server) handleBulkMergePRs(w http.ResponseWriter, r *http.Request) {
	gh, err := s.githubRepoFor(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	var req mergeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, apierr.New(apierr.CodeInvalidName, "malformed request body"))
		return
	}
	result, err := s.deps.PullRequests.BulkMerge(r.Context(), gh.Owner, gh.Repo,
		prcontroller.MergeOptions{Method: req.Method, Force: req.Force})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"result": result})
}
