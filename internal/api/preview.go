package api

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"

	"dronehub/internal/apierr"
)

// handlePreview implements GET /drones/{id}/preview/{containerPort}/{path...}:
// a reverse proxy to 127.0.0.1:<mappedHostPort>, preserving method, body,
// and headers except Host, and supporting WebSocket upgrades (spec §6.2).
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	drone, err := s.deps.Fleet.Get(r.PathValue("id"))
	if err != nil {
		writeErr(w, err)
		return
	}
	containerPort, err := strconv.Atoi(r.PathValue("containerPort"))
	if err != nil {
		writeErr(w, apierr.New(apierr.CodeInvalidName, "containerPort must be an integer"))
		return
	}

	ports, err := s.deps.Ports.Ports(r.Context(), drone.Name, s.deps.ExecTimeout())
	if err != nil {
		writeErr(w, err)
		return
	}
	hostPort := 0
	for _, p := range ports {
		if p.ContainerPort == containerPort {
			hostPort = p.HostPort
			break
		}
	}
	if hostPort == 0 {
		writeErr(w, apierr.New(apierr.CodeNotFound, fmt.Sprintf("no host mapping for container port %d", containerPort)))
		return
	}

	target := &url.URL{Scheme: "http", Host: fmt.Sprintf("127.0.0.1:%d", hostPort)}
	proxy := httputil.NewSingleHostReverseProxy(target)
	r.URL.Path = "/" + r.PathValue("path")
	proxy.ServeHTTP(w, r)
}
