package api

import "github.com/prometheus/client_golang/prometheus/promhttp"

// registerRoutes wires every endpoint in spec §6.2 onto the Go 1.22
// method+pattern ServeMux, mirroring the corpus's registerRoutes shape.
func (s *Server) registerRoutes() {
	if s.deps.MetricsEnabled {
		s.mux.Handle("GET /metrics", promhttp.Handler())
	}

	s.mux.HandleFunc("GET /api/drones", s.handleListDrones)
	s.mux.HandleFunc("POST /api/drones", s.handleCreateDrones)
	s.mux.HandleFunc("DELETE /api/drones/{id}", s.handleDeleteDrone)
	s.mux.HandleFunc("POST /api/drones/{id}/rename", s.handleRenameDrone)
	s.mux.HandleFunc("POST /api/drones/{id}/base-image", s.handleBaseImage)
	s.mux.HandleFunc("POST /api/drones/{id}/clone", s.handleCloneDrone)
	s.mux.HandleFunc("GET /api/drones/{id}/ports", s.handlePorts)

	s.mux.HandleFunc("GET /api/drones/{id}/chats/{chat}/transcript", s.handleTranscript)
	s.mux.HandleFunc("POST /api/drones/{id}/chats/{chat}/prompt", s.handlePrompt)
	s.mux.HandleFunc("GET /api/drones/{id}/chats/{chat}/pending", s.handlePending)
	s.mux.HandleFunc("POST /api/drones/{id}/chats/{chat}/pending/{promptId}/unstick", s.handleUnstick)

	s.mux.HandleFunc("POST /api/drones/{id}/terminal/open", s.handleTerminalOpen)
	s.mux.HandleFunc("GET /api/drones/{id}/terminal/{session}/output", s.handleTerminalOutput)
	s.mux.HandleFunc("POST /api/drones/{id}/terminal/{session}/input", s.handleTerminalInput)
	s.mux.HandleFunc("GET /api/drones/{id}/terminal/{session}/stream", s.handleTerminalStream)

	s.mux.HandleFunc("GET /api/drones/{id}/repo/changes", s.handleRepoChanges)
	s.mux.HandleFunc("GET /api/drones/{id}/repo/diff", s.handleRepoDiff)
	s.mux.HandleFunc("POST /api/drones/{id}/repo/pull", s.handleRepoPull)
	s.mux.HandleFunc("POST /api/drones/{id}/repo/push", s.handleRepoPush)
	s.mux.HandleFunc("GET /api/drones/{id}/repo/pull/changes", s.handlePullChanges)
	s.mux.HandleFunc("GET /api/drones/{id}/repo/pull/diff", s.handlePullDiff)

	s.mux.HandleFunc("GET /api/drones/{id}/repo/pull-requests", s.handleListPRs)
	s.mux.HandleFunc("POST /api/drones/{id}/repo/pull-requests/{n}/merge", s.handleMergePR)
	s.mux.HandleFunc("POST /api/drones/{id}/repo/pull-requests/{n}/close", s.handleClosePR)
	s.mux.HandleFunc("POST /api/drones/{id}/repo/pull-requests/bulk-merge", s.handleBulkMergePRs)

	s.mux.HandleFunc("GET /api/drones/{id}/preview/{containerPort}/{path...}", s.handlePreview)
}
