package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"gopkg.in/yaml.v3"

	"dronehub/internal/apierr"
	"dronehub/internal/orchestrator"
)

// handleListDrones implements GET /drones.
func (s *Server) handleListDrones(w http.ResponseWriter, r *http.Request) {
	writeOK(w, map[string]any{"drones": s.deps.Fleet.List()})
}

// createDroneRequest is the body POST /drones accepts, one entry per drone
// to queue (spec §4.4 "Create / Queue" batch semantics).
type createDroneRequest struct {
	Drones []orchestrator.DroneQueueSpec `json:"drones" yaml:"drones"`
}

// handleCreateDrones implements POST /drones. The CLI front door may submit
// a YAML fleet manifest instead of JSON (Content-Type: application/yaml or
// text/yaml), for operators who keep queue specs in a checked-in file
// alongside their repo rather than building the JSON body by hand.
func (s *Server) handleCreateDrones(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, apierr.New(apierr.CodeInvalidName, "failed to read request body"))
		return
	}

	var req createDroneRequest
	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "yaml") {
		err = yaml.Unmarshal(body, &req)
	} else {
		err = json.Unmarshal(body, &req)
	}
	if err != nil {
		writeErr(w, apierr.New(apierr.CodeInvalidName, "malformed request body"))
		return
	}

	result := s.deps.Lifecycle.Queue(r.Context(), req.Drones)
	writeOK(w, map[string]any{"accepted": result.Accepted, "rejected": result.Rejected})
}

// handleDeleteDrone implements DELETE /drones/{id}.
func (s *Server) handleDeleteDrone(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.deps.Lifecycle.Delete(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, nil)
}

type renameRequest struct {
	NewName           string `json:"newName"`
	MigrateVolumeName bool   `json:"migrateVolumeName"`
}

// handleRenameDrone implements POST /drones/{id}/rename.
func (s *Server) handleRenameDrone(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, apierr.New(apierr.CodeInvalidName, "malformed request body"))
		return
	}
	oldDrone, err := s.deps.Fleet.Get(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if _, err := s.deps.Lifecycle.Rename(r.Context(), id, req.NewName); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"oldName": oldDrone.Name, "newName": req.NewName})
}

// handleBaseImage implements POST /drones/{id}/base-image.
func (s *Server) handleBaseImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	tag, err := s.deps.Lifecycle.SetBaseImage(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"baseImage": tag})
}

type cloneRequest struct {
	NewName      string `json:"newName"`
	IncludeChats bool   `json:"includeChats"`
}

// handleCloneDrone implements POST /drones/{id}/clone.
func (s *Server) handleCloneDrone(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req cloneRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, apierr.New(apierr.CodeInvalidName, "malformed request body"))
		return
	}
	drone, err := s.deps.Lifecycle.Clone(r.Context(), id, req.NewName, req.IncludeChats)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"drone": drone})
}

// handlePorts implements GET /drones/{id}/ports.
func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	drone, err := s.deps.Fleet.Get(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	ports, err := s.deps.Ports.Ports(r.Context(), drone.Name, s.deps.ExecTimeout())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, map[string]any{"ports": ports})
}
