package api

import (
	"net/http"

	"grimm.is/ngxweb/internal/audit"
	"grimm.is/ngxweb/internal/lb"
)

// HealthStatusResponse is the result of probing one pool member.
type HealthStatusResponse struct {
	Status lb.Status `json:"status"`
}

func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.pool.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "Failed to list servers", err)
		return
	}
	if servers == nil {
		servers = []lb.Server{}
	}
	WriteJSON(w, http.StatusOK, servers)
}

func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	srv, err := s.pool.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, "Failed to get server", err)
		return
	}
	WriteJSON(w, http.StatusOK, srv)
}

func (s *Server) handleCreateServer(w http.ResponseWriter, r *http.Request) {
	var req lb.CreateRequest
	if !BindJSON(w, r, &req) {
		return
	}

	srv, err := s.pool.Add(req)
	if err != nil {
		s.writeServiceError(w, r, "Failed to create server", err)
		return
	}
	s.record(r, audit.ActionServerAdd, srv.ID, http.StatusCreated, map[string]any{"name": srv.Name})
	WriteJSON(w, http.StatusCreated, srv)
}

func (s *Server) handleUpdateServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req lb.UpdateRequest
	if !BindJSON(w, r, &req) {
		return
	}

	srv, err := s.pool.Update(id, req)
	if err != nil {
		s.writeServiceError(w, r, "Failed to update server", err)
		return
	}
	details := map[string]any{}
	if srv.ID != id {
		details["new_id"] = srv.ID
	}
	s.record(r, audit.ActionServerUpdate, id, http.StatusOK, details)
	WriteJSON(w, http.StatusOK, srv)
}

func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.pool.Remove(id); err != nil {
		s.writeServiceError(w, r, "Failed to remove server", err)
		return
	}
	s.record(r, audit.ActionServerRemove, id, http.StatusOK, nil)
	WriteJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "Server removed successfully"})
}

func (s *Server) handleServerHealth(w http.ResponseWriter, r *http.Request) {
	status, err := s.pool.Check(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, "Failed to check server health", err)
		return
	}
	WriteJSON(w, http.StatusOK, HealthStatusResponse{Status: status})
}
