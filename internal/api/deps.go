// Package api is the HTTP API (spec §4.8): a thin routing layer composing
// C3-C7 behind narrow interfaces, matching the corpus's Dependencies-struct
// idiom for decoupling HTTP handlers from concrete component types.
package api

import (
	"context"
	"net/http"
	"time"

	"dronehub/internal/containeradapter"
	"dronehub/internal/logging"
	"dronehub/internal/orchestrator"
	"dronehub/internal/prcontroller"
	"dronehub/internal/promptqueue"
	"dronehub/internal/registry"
	"dronehub/internal/reposync"
	"dronehub/internal/terminalhub"
)

// Lifecycle is what Server needs from the lifecycle orchestrator (C4).
type Lifecycle interface {
	Queue(ctx context.Context, specs []orchestrator.DroneQueueSpec) orchestrator.QueueResult
	Delete(ctx context.Context, droneID string) error
	Rename(ctx context.Context, droneID, newName string) (registry.Drone, error)
	SetBaseImage(ctx context.Context, droneID string) (string, error)
	Clone(ctx context.Context, sourceID, newName string, includeChats bool) (registry.Drone, error)
}

// Fleet is what Server needs from the drone/repo registry (C3).
type Fleet interface {
	List() []registry.Drone
	Get(id string) (registry.Drone, error)
	GetRepo(path string) (registry.Repo, error)
}

// Prompts is what Server needs from the prompt dispatcher (C5).
type Prompts interface {
	Send(ctx context.Context, droneID, chat, prompt string, attachments []promptqueue.Attachment) (string, error)
	Pending(droneID, chat string) []promptqueue.PendingPrompt
	Unstick(droneID, chat, promptID string, minAge time.Duration) error
	Transcript(droneID, chat, turn string) ([]promptqueue.TranscriptItem, error)
}

// Terminals is what Server needs from the terminal stream hub (C6).
type Terminals interface {
	Open(ctx context.Context, droneID string, opts terminalhub.OpenOptions) (string, error)
	ServeOutput(w http.ResponseWriter, r *http.Request, droneID, name string)
	ServeInput(w http.ResponseWriter, r *http.Request, droneID, name string)
	ServeWS(w http.ResponseWriter, r *http.Request, droneID, name string)
}

// RepoOps is what Server needs from the repo sync engine (C2).
type RepoOps interface {
	Apply(ctx context.Context, droneID, container, dronePath, hostRepoPath string, timeout time.Duration) (reposync.ApplyResult, error)
	PushHost(ctx context.Context, container, dronePath, hostRef string, timeout time.Duration) (reposync.PushHostResult, error)
	PullPreview(ctx context.Context, container, repoPath string, timeout time.Duration) ([]reposync.DiffEntry, error)
	DroneWorkingTreeStatus(ctx context.Context, container, repoPath string, timeout time.Duration) (reposync.WorkingTreeStatus, error)
	DronePullDiff(ctx context.Context, container, repoPath, path string, timeout time.Duration) (reposync.DiffResult, error)
}

// PullRequests is what Server needs from the PR controller (C7).
type PullRequests interface {
	List(ctx context.Context, owner, repo string) ([]prcontroller.Summary, error)
	Merge(ctx context.Context, owner, repo string, number int, opts prcontroller.MergeOptions) (prcontroller.MergeResult, error)
	Close(ctx context.Context, owner, repo string, number int) error
	BulkMerge(ctx context.Context, owner, repo string, opts prcontroller.MergeOptions) (prcontroller.BulkResult, error)
}

// PortsLister is what Server needs from the container adapter (C1) to
// resolve preview-port mappings.
type PortsLister interface {
	Ports(ctx context.Context, container string, timeout time.Duration) ([]containeradapter.Port, error)
}

// Dependencies wires every component C8 fronts.
type Dependencies struct {
	Lifecycle      Lifecycle
	Fleet          Fleet
	Prompts        Prompts
	Terminals      Terminals
	RepoOps        RepoOps
	PullRequests   PullRequests
	Ports          PortsLister
	ExecTimeout    func() time.Duration
	SeedTimeout    func() time.Duration
	UnstickAfter   func() time.Duration
	MetricsEnabled bool
	Log            *logging.Logger
}

// Server is the HTTP API server (C8).
type Server struct {
	deps   Dependencies
	mux    *http.ServeMux
	server *http.Server
}

// New creates a Server with all routes registered.
func New(deps Dependencies) *Server {
	s := &Server{deps: deps, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      countRequests(s.mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WS/long-poll connections are long-lived; per-handler timeouts are used instead
		IdleTimeout:  120 * time.Second,
	}
	s.deps.Log.Info("http api listening", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
